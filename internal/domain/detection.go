package domain

import (
	"strings"
	"time"
)

// Kind is the media category of an uploaded file.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// ParseKind maps a path segment to a Kind. ok is false for anything other
// than "image" or "video".
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindImage:
		return KindImage, true
	case KindVideo:
		return KindVideo, true
	default:
		return "", false
	}
}

// MimePrefix is the media type prefix accepted for the kind.
func (k Kind) MimePrefix() string {
	return string(k) + "/"
}

// Result is the verdict returned by the inference service. Values are kept
// exactly as received.
type Result struct {
	IsDeepfake     bool    `json:"isDeepfake"`
	RealPercentage float64 `json:"realPercentage"`
	FakePercentage float64 `json:"fakePercentage"`
	Confidence     float64 `json:"confidence"`
}

// Detection is one completed analysis owned by a user.
type Detection struct {
	ID              string
	UserID          int64
	FileName        string
	FileType        Kind
	FileSize        int64
	FilePath        string
	FileURL         string
	MimeType        string
	ArchiveLocation string
	Result          Result
	CreatedAt       time.Time
}

// StoredFile describes an upload that has been written to local storage.
type StoredFile struct {
	Path         string
	Name         string
	OriginalName string
	URL          string
	MimeType     string
	Size         int64
}

// Stats aggregates a user's detections.
type Stats struct {
	Total     int64
	Images    int64
	Videos    int64
	Deepfakes int64
}

// CountFilter narrows CountByOwner. Nil fields are not applied.
type CountFilter struct {
	Kind     *Kind
	Deepfake *bool
}
