// Package inference talks to the external deepfake detection service.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"deepfake-detector/internal/apperr"
	"deepfake-detector/internal/domain"
)

const (
	DefaultTimeout = 5 * time.Minute
	maxErrorBody   = 4 << 10
)

// Config configures a Client.
type Config struct {
	BaseURL string
	// Timeout bounds a single Analyze call, retries included.
	Timeout time.Duration
	// MaxAttempts > 1 enables retries on transport errors and 502/503/504.
	MaxAttempts int
	// RetryBackoff is the base of the exponential backoff between attempts.
	RetryBackoff time.Duration
	HTTPClient   *http.Client
	Logger       logrus.FieldLogger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL     string
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	http        *http.Client
	logger      logrus.FieldLogger
}

type detectResponse struct {
	Result *domain.Result `json:"result"`
}

// NewClient builds a client for the service rooted at cfg.BaseURL
// (e.g. http://localhost:8000/api).
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.HTTPClient == nil {
		// the per-call deadline comes from the context
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.RetryBackoff,
		http:        cfg.HTTPClient,
		logger:      cfg.Logger,
	}
}

// Analyze uploads the file at filePath to {base}/detect/{kind}/ and returns
// the verdict. Network failures, timeouts, non-2xx answers and malformed
// bodies are all UpstreamError.
func (c *Client) Analyze(ctx context.Context, kind domain.Kind, filePath, fileName, mimeType string) (*domain.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/detect/%s/", c.baseURL, kind)
	log := c.logger.WithFields(logrus.Fields{"kind": kind, "file": fileName})

	var result *domain.Result
	attempt := 0
	op := func(ctx context.Context) error {
		attempt++
		res, err := c.post(ctx, endpoint, filePath, fileName, mimeType)
		if err == nil {
			result = res
			return nil
		}
		if attempt < c.maxAttempts && retryable(err) {
			log.WithError(err).WithField("attempt", attempt).Warn("inference attempt failed, retrying")
			return retry.RetryableError(err)
		}
		return err
	}

	if _, err := os.Stat(filePath); err != nil {
		return nil, fmt.Errorf("stat stored file: %w", err)
	}

	backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(c.backoff))
	if err := retry.Do(ctx, backoff, op); err != nil {
		if apperr.KindOf(err) != apperr.KindUpstream &&
			(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
			return nil, apperr.Wrap(apperr.KindUpstream, "Inference request timed out or was cancelled", err)
		}
		return nil, err
	}
	return result, nil
}

var errTransport = errors.New("transport")

type upstreamStatusError struct {
	status int
}

func (e upstreamStatusError) Error() string { return fmt.Sprintf("status %d", e.status) }

func retryable(err error) bool {
	if errors.Is(err, errTransport) {
		return true
	}
	var se upstreamStatusError
	if errors.As(err, &se) {
		switch se.status {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

func (c *Client) post(ctx context.Context, endpoint, filePath, fileName, mimeType string) (*domain.Result, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pw.CloseWithError(writeMultipart(mw, file, fileName, mimeType))
	}()
	// the writer must be gone before the file is closed
	defer func() {
		pr.Close()
		<-done
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return nil, fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &apperr.Error{
			Kind:    apperr.KindUpstream,
			Message: "Inference service unreachable",
			Err:     fmt.Errorf("%w: %w", errTransport, err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &apperr.Error{
			Kind:    apperr.KindUpstream,
			Message: "Inference service returned an error",
			Detail:  fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			Err:     upstreamStatusError{status: resp.StatusCode},
		}
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "Inference service returned a malformed response", err)
	}
	if decoded.Result == nil {
		return nil, &apperr.Error{
			Kind:    apperr.KindUpstream,
			Message: "Inference service returned a malformed response",
			Detail:  "missing result",
		}
	}
	return decoded.Result, nil
}

func writeMultipart(mw *multipart.Writer, src io.Reader, fileName, mimeType string) error {
	if fileName == "" {
		fileName = "upload"
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filepath.Base(fileName))))
	header.Set("Content-Type", mimeType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// Health probes {base}/health/.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "Inference service unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode != http.StatusOK {
		return &apperr.Error{
			Kind:    apperr.KindUpstream,
			Message: "Inference service unhealthy",
			Detail:  fmt.Sprintf("status %d", resp.StatusCode),
		}
	}
	return nil
}
