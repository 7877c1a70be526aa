package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("get detection: %w", New(KindNotFound, "Detection not found"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidInput:       http.StatusBadRequest,
		KindPayloadTooLarge:    http.StatusRequestEntityTooLarge,
		KindUnauthorized:       http.StatusUnauthorized,
		KindInvalidCredentials: http.StatusUnauthorized,
		KindConflict:           http.StatusConflict,
		KindNotFound:           http.StatusNotFound,
		KindUpstream:           http.StatusBadGateway,
		KindInternal:           http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatus(kind), kind)
	}
}

func TestResponseRedactsInternal(t *testing.T) {
	status, body := Response(fmt.Errorf("insert: %w", errors.New("disk I/O error at /var/lib")))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Server error", body.Message)
	assert.Empty(t, body.Details)
}

func TestResponseKeepsUpstreamDetail(t *testing.T) {
	err := &Error{Kind: KindUpstream, Message: "inference service error", Detail: "status 503: overloaded"}

	status, body := Response(fmt.Errorf("analyze: %w", err))

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, KindUpstream, body.Code)
	assert.Equal(t, "status 503: overloaded", body.Details)
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(KindUpstream, "inference service unreachable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "refused")
}
