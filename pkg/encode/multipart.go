package encode

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/google/uuid"

	"github.com/keboola/go-fetch/pkg/params"
	"github.com/keboola/go-fetch/pkg/source"
)

const (
	encodingMultipart = "multipart"
	// FilenameKey is a metadata parameter, its value is used as the filename of file and blob parts.
	FilenameKey = "_filename"
	// DefaultFilename is used if the FilenameKey parameter is not set.
	DefaultFilename = "empty"
	// metadataPrefix marks parameters which are never emitted as parts.
	metadataPrefix = "_"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"") //nolint:gochecknoglobals

// NewBoundary generates a unique multipart boundary.
func NewBoundary() string {
	return "Boundary-" + uuid.NewString()
}

// Multipart encodes parameters to a "multipart/form-data" body delimited by the boundary.
// Keys with the "_" prefix are metadata and produce no part.
// File references are read by the source, lists are not supported.
func Multipart(ctx context.Context, p *params.Map, boundary string, src source.Source) ([]byte, error) {
	filename := DefaultFilename
	if v, found := p.Get(FilenameKey); found {
		if text, ok := params.Text(v); ok {
			filename = text
		}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.SetBoundary(boundary); err != nil {
		return nil, &EncodeError{Encoding: encodingMultipart, Err: err}
	}

	parts := 0
	for _, key := range p.Keys() {
		if strings.HasPrefix(key, metadataPrefix) {
			continue
		}
		value, _ := p.Get(key)
		if err := writePart(ctx, writer, key, value, filename, src); err != nil {
			return nil, &EncodeError{Encoding: encodingMultipart, Err: err}
		}
		parts++
	}

	if parts == 0 {
		// The writer always starts the closing delimiter with CRLF, which belongs to a previous part
		return fmt.Appendf(nil, "--%s--\r\n", boundary), nil
	}
	if err := writer.Close(); err != nil {
		return nil, &EncodeError{Encoding: encodingMultipart, Err: err}
	}
	return body.Bytes(), nil
}

func writePart(ctx context.Context, writer *multipart.Writer, key string, value params.Value, filename string, src source.Source) error {
	var content []byte
	var contentType string
	var isFile bool

	switch v := value.(type) {
	case params.File:
		if src == nil {
			return fmt.Errorf(`parameter "%s": no file source configured`, key)
		}
		file, err := src.Read(ctx, string(v))
		if err != nil {
			return fmt.Errorf(`parameter "%s": %w`, key, err)
		}
		content, contentType, isFile = file.Data, file.MIMEType, true
	case params.Blob:
		content, contentType, isFile = v, source.DetectMIME(filename, v), true
	case params.List:
		return &UnsupportedParameterTypeError{Key: key, Kind: v.Kind(), Encoding: encodingMultipart}
	default:
		text, ok := params.Text(v)
		if !ok {
			return &UnsupportedParameterTypeError{Key: key, Kind: v.Kind(), Encoding: encodingMultipart}
		}
		content, contentType = []byte(text), "text/plain"
	}

	disposition := fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(key))
	if isFile {
		disposition += fmt.Sprintf(`; filename="%s"`, quoteEscaper.Replace(filename))
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", disposition)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(content)
	return err
}
