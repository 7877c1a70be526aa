package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	bucket, key, err := ParseLocation("s3://media/detections/7/123-face.jpg", "media")
	require.NoError(t, err)
	assert.Equal(t, "media", bucket)
	assert.Equal(t, "detections/7/123-face.jpg", key)

	for _, bad := range []string{"", "http://media/x", "s3://", "s3://media", "s3://media/", "s3:///x"} {
		_, _, err := ParseLocation(bad, "")
		assert.Error(t, err, bad)
	}

	_, _, err = ParseLocation("s3://other/x", "media")
	assert.ErrorContains(t, err, "mismatch")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "detections/7/a.jpg", Key("/detections/", "7", "a.jpg"))
	assert.Equal(t, "7/a.jpg", Key("", "7", "/a.jpg"))
}
