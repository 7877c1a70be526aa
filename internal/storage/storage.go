package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Object is an archived file opened for reading.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// Archive keeps a remote copy of analysed uploads. Locations have the form
// s3://bucket/key.
type Archive interface {
	Upload(ctx context.Context, localPath, key, contentType string) (string, error)
	Open(ctx context.Context, location string) (*Object, error)
	Delete(ctx context.Context, location string) error
}

// ParseLocation splits s3://bucket/key. When bucket is non-empty the
// location must refer to it.
func ParseLocation(location, bucket string) (string, string, error) {
	if !strings.HasPrefix(location, "s3://") {
		return "", "", fmt.Errorf("invalid s3 location")
	}
	rest := strings.TrimPrefix(location, "s3://")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || strings.Trim(parts[1], "/") == "" {
		return "", "", fmt.Errorf("invalid s3 location")
	}
	if bucket != "" && parts[0] != bucket {
		return "", "", fmt.Errorf("s3 bucket mismatch")
	}
	return parts[0], parts[1], nil
}

// Key joins a prefix and path segments with single slashes.
func Key(prefix string, segments ...string) string {
	parts := make([]string, 0, len(segments)+1)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	for _, s := range segments {
		if s = strings.Trim(s, "/"); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}
