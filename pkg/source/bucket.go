package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
)

const genericMIMEType = "application/octet-stream"

// FromBucket reads keys from an opened bucket, ref is the key.
// The bucket is owned by the caller.
func FromBucket(bucket *blob.Bucket) Source {
	return Func(func(ctx context.Context, ref string) (*Content, error) {
		content, err := readKey(ctx, bucket, strings.TrimLeft(ref, "/"))
		if err != nil {
			return nil, &ReadError{Ref: ref, Err: err}
		}
		return content, nil
	})
}

// OpenDirBucket opens a local directory as a bucket, use it with FromBucket to resolve keys relative to the directory.
func OpenDirBucket(dir string) (*blob.Bucket, error) {
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{NoTempDir: true})
	if err != nil {
		return nil, fmt.Errorf(`cannot open directory "%s": %w`, dir, err)
	}
	return bucket, nil
}

// BucketURL reads references in form "<scheme>://<bucket>/<key>?<bucket options>".
// The bucket is opened using the gocloud.dev/blob default URL mux and closed after each read.
// Drivers for "s3", "gs" and "azblob" schemes are registered by this package, see cloud.go.
func BucketURL() Source {
	return Func(func(ctx context.Context, ref string) (*Content, error) {
		bucketURL, key, err := splitBucketURL(ref)
		if err != nil {
			return nil, &ReadError{Ref: ref, Err: err}
		}

		bucket, err := blob.OpenBucket(ctx, bucketURL)
		if err != nil {
			return nil, &ReadError{Ref: ref, Err: fmt.Errorf(`cannot open bucket "%s": %w`, bucketURL, err)}
		}
		defer bucket.Close()

		content, err := readKey(ctx, bucket, key)
		if err != nil {
			return nil, &ReadError{Ref: ref, Err: err}
		}
		return content, nil
	})
}

func readKey(ctx context.Context, bucket *blob.Bucket, key string) (*Content, error) {
	reader, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf(`opening blob "%s" failed: %w`, key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf(`reading blob "%s" failed: %w`, key, err)
	}

	mimeType := reader.ContentType()
	if mimeType == "" || strings.HasPrefix(mimeType, genericMIMEType) {
		mimeType = DetectMIME(key, data)
	}
	return &Content{Data: data, MIMEType: mimeType}, nil
}

func splitBucketURL(ref string) (bucketURL string, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", err
	}
	key = strings.TrimLeft(u.Path, "/")
	if u.Scheme == "" || u.Host == "" || key == "" {
		return "", "", fmt.Errorf(`expected "<scheme>://<bucket>/<key>", found "%s"`, ref)
	}
	bucket := url.URL{Scheme: u.Scheme, Host: u.Host, RawQuery: u.RawQuery}
	return bucket.String(), key, nil
}
