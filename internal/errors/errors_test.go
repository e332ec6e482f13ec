package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageFormatting(t *testing.T) {
	err := ValidationError("missing pollId")
	assert.Equal(t, "validation: missing pollId", err.Error())

	cause := stderrors.New("connection refused")
	err = ExternalError("token store unreachable").WithCause(cause)
	assert.Equal(t, "external: token store unreachable: connection refused", err.Error())
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := InternalError("something broke").WithCause(cause)

	assert.ErrorIs(t, err, cause)

	var structured *Error
	require.ErrorAs(t, fmt.Errorf("outer: %w", err), &structured)
	assert.Equal(t, TypeInternal, structured.Type)
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err    *Error
		status int
	}{
		{ValidationError("x"), http.StatusBadRequest},
		{UnauthorizedError("x"), http.StatusUnauthorized},
		{NotFoundError("x"), http.StatusNotFound},
		{ExternalError("x"), http.StatusBadGateway},
		{InternalError("x"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, tc.err.HTTPStatus(), "type %s", tc.err.Type)
	}
}

func TestWithContext(t *testing.T) {
	err := ValidationError("bad frame").WithContext("frame_type", "subscribe")
	assert.Equal(t, "subscribe", err.Context["frame_type"])
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, TypeUnauthorized, TypeOf(UnauthorizedError("no")))
	assert.Equal(t, TypeUnauthorized, TypeOf(fmt.Errorf("wrap: %w", UnauthorizedError("no"))))
	assert.Equal(t, TypeInternal, TypeOf(stderrors.New("plain")))
}
