package relay

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	cause := errors.New("boom")
	err := newError(KindParseFailure, "intake.spool", cause).withSub(SubTooLarge)

	assert.Equal(t, "intake.spool: parse_failure/too_large: boom", err.Error())
	assert.ErrorIs(t, err, cause)

	up := newError(KindUpstreamError, "forward.upstream", nil)
	up.Status = 503
	assert.Equal(t, "forward.upstream: upstream_error (status 503)", up.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindUnknownFailure, KindOf(errors.New("plain")))

	wrapped := fmt.Errorf("relay: %w", newError(KindNoFileProvided, "intake", nil))
	assert.Equal(t, KindNoFileProvided, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindNoFileProvided))
	assert.False(t, IsKind(nil, KindNoFileProvided))
}

func TestHTTPStatus(t *testing.T) {
	upstream := func(status int) error {
		e := newError(KindUpstreamError, "forward", nil)
		e.Status = status

		return e
	}

	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
	assert.Equal(t, http.StatusMethodNotAllowed, HTTPStatus(newError(KindMethodNotAllowed, "intake", nil)))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(newError(KindNoFileProvided, "intake", nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(newError(KindParseFailure, "intake", nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(newError(KindIOFailure, "extract", nil)))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(upstream(503)))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(upstream(404)))
	// 上游返回非错误状态码时按网关错误处理
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(upstream(302)))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(upstream(0)))
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, MsgMethodNotAllowed, PublicMessage(newError(KindMethodNotAllowed, "", nil)))
	assert.Equal(t, MsgNoFile, PublicMessage(newError(KindNoFileProvided, "", nil)))
	assert.Equal(t, MsgParseForm, PublicMessage(newError(KindParseFailure, "", nil)))
	assert.Equal(t, MsgServerError, PublicMessage(newError(KindIOFailure, "", nil)))
	assert.Equal(t, MsgServerError, PublicMessage(errors.New("plain")))
}
