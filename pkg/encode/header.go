package encode

import (
	"net/http"
	"strings"
)

const (
	HeaderContentType  = "Content-Type"
	HeaderCacheControl = "Cache-Control"

	ContentTypeJSON      = "application/json"
	ContentTypeForm      = "application/x-www-form-urlencoded"
	ContentTypeMultipart = "multipart/form-data"

	defaultCacheControl = "no-cache"
)

type bodyEncoding int

const (
	bodyJSON bodyEncoding = iota
	bodyForm
	bodyMultipart
)

// finalizeHeader returns a copy of the header with the default Content-Type and Cache-Control.
// Values set by the caller are kept.
func finalizeHeader(header http.Header) http.Header {
	out := header.Clone()
	if out == nil {
		out = make(http.Header)
	}
	if len(out.Values(HeaderContentType)) == 0 {
		out.Set(HeaderContentType, ContentTypeJSON)
	}
	if len(out.Values(HeaderCacheControl)) == 0 {
		out.Set(HeaderCacheControl, defaultCacheControl)
	}
	return out
}

// bodyEncodingOf selects the body encoding by the Content-Type.
func bodyEncodingOf(contentType string) bodyEncoding {
	contentType = strings.ToLower(contentType)
	switch {
	case strings.Contains(contentType, "json"):
		return bodyJSON
	case strings.Contains(contentType, "form-urlencoded"):
		return bodyForm
	default:
		return bodyMultipart
	}
}
