// Package upload validates incoming media and writes it to the upload
// directory.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"deepfake-detector/internal/apperr"
	"deepfake-detector/internal/domain"
)

// DefaultMaxBytes is the per-file upload limit.
const DefaultMaxBytes int64 = 50 << 20

const (
	sniffLen       = 3072
	maxNameLen     = 100
	defaultBaseURL = "/uploads"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Config configures a Receiver.
type Config struct {
	Dir       string
	MaxBytes  int64
	PublicURL string
}

// FileUpload is a single file as received from the client.
type FileUpload struct {
	Name        string
	ContentType string
	// Size is the declared size, or -1 when unknown.
	Size   int64
	Reader io.Reader
}

// Receiver stores uploads on local disk.
type Receiver struct {
	dir       string
	maxBytes  int64
	publicURL string
	now       func() time.Time
}

// NewReceiver creates the upload directory if needed.
func NewReceiver(cfg Config) (*Receiver, error) {
	if cfg.Dir == "" {
		return nil, errors.New("upload dir is required")
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = defaultBaseURL
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Receiver{
		dir:       CanonicalDir(cfg.Dir),
		maxBytes:  cfg.MaxBytes,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		now:       time.Now,
	}, nil
}

// CanonicalDir returns dir as an absolute path with symlinks resolved, so
// stored file paths compare equal however the directory was configured.
// Resolution errors leave the best path obtained so far.
func CanonicalDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Clean(dir)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// Dir is the directory uploads are written to.
func (r *Receiver) Dir() string { return r.dir }

// MaxBytes is the per-file limit.
func (r *Receiver) MaxBytes() int64 { return r.maxBytes }

// Receive validates the upload against kind and writes it to disk. The file
// is synced before Receive returns.
func (r *Receiver) Receive(ctx context.Context, kind domain.Kind, f FileUpload) (*domain.StoredFile, error) {
	if _, ok := domain.ParseKind(string(kind)); !ok {
		return nil, apperr.New(apperr.KindInvalidInput, "Invalid file type. Must be image or video")
	}
	if f.Reader == nil {
		return nil, apperr.New(apperr.KindInvalidInput, "No file uploaded")
	}
	declared := strings.ToLower(strings.TrimSpace(f.ContentType))
	if !strings.HasPrefix(declared, kind.MimePrefix()) {
		return nil, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("Only %s files are allowed", kind))
	}
	if f.Size > r.maxBytes {
		return nil, tooLarge(r.maxBytes)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f.Reader, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, readError(err, r.maxBytes)
	}
	head = head[:n]
	if n == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "Uploaded file is empty")
	}

	detected := mimetype.Detect(head)
	if !strings.HasPrefix(detected.String(), kind.MimePrefix()) {
		return nil, &apperr.Error{
			Kind:    apperr.KindInvalidInput,
			Message: fmt.Sprintf("Only %s files are allowed", kind),
			Detail:  "content looks like " + detected.String(),
		}
	}

	name := storedName(r.now(), f.Name, detected.Extension())
	dst := filepath.Join(r.dir, name)

	written, err := r.write(dst, io.MultiReader(bytes.NewReader(head), f.Reader))
	if err != nil {
		_ = os.Remove(dst)
		return nil, err
	}

	return &domain.StoredFile{
		Path:         dst,
		Name:         name,
		OriginalName: originalName(f.Name),
		URL:          path.Join(r.publicURL, name),
		MimeType:     detected.String(),
		Size:         written,
	}, nil
}

func (r *Receiver) write(dst string, src io.Reader) (int64, error) {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}

	written, err := io.Copy(out, io.LimitReader(src, r.maxBytes+1))
	if err != nil {
		out.Close()
		return 0, readError(err, r.maxBytes)
	}
	if written > r.maxBytes {
		out.Close()
		return 0, tooLarge(r.maxBytes)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return 0, fmt.Errorf("sync upload file: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("close upload file: %w", err)
	}
	return written, nil
}

// Remove deletes a stored upload. Missing files and paths outside the upload
// directory are ignored.
func (r *Receiver) Remove(p string) error {
	if !r.Contains(p) {
		return nil
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

// Contains reports whether p lies inside the upload directory.
func (r *Receiver) Contains(p string) bool {
	if p == "" {
		return false
	}
	abs := filepath.Join(CanonicalDir(filepath.Dir(p)), filepath.Base(p))
	rel, err := filepath.Rel(r.dir, abs)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

func storedName(now time.Time, original, ext string) string {
	base := originalName(original)
	base = unsafeName.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "upload" + ext
	}
	if len(base) > maxNameLen {
		base = base[len(base)-maxNameLen:]
	}
	return fmt.Sprintf("%d-%s-%s", now.UnixMilli(), uuid.NewString()[:8], base)
}

func originalName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func tooLarge(limit int64) error {
	return &apperr.Error{
		Kind:    apperr.KindPayloadTooLarge,
		Message: "File too large",
		Detail:  fmt.Sprintf("limit is %d bytes", limit),
	}
}

func readError(err error, limit int64) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return tooLarge(limit)
	}
	return apperr.Wrap(apperr.KindInvalidInput, "Failed to read upload", err)
}
