package apierr_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowmine/engine/internal/apierr"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[apierr.Code]int{
		apierr.NotFound:            http.StatusNotFound,
		apierr.Conflict:            http.StatusConflict,
		apierr.InvalidArgument:     http.StatusBadRequest,
		apierr.PreconditionFailed:  http.StatusConflict,
		apierr.JobInProgress:       http.StatusConflict,
		apierr.ProviderUnavailable: http.StatusServiceUnavailable,
		apierr.Internal:            http.StatusInternalServerError,
	}
	for code, want := range cases {
		e := apierr.New(code, "boom")
		require.Equal(t, want, e.HTTPStatus(), code)
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	e := apierr.Wrap(apierr.Internal, "write failed", cause)
	require.ErrorIs(t, e, cause)
}

func TestAs(t *testing.T) {
	err := error(apierr.NotFoundf("object %s", "abc"))
	e, ok := apierr.As(err)
	require.True(t, ok)
	require.Equal(t, apierr.NotFound, e.Code)
}
