package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{
			name: "generic",
			err:  errors.New("foo"),
			code: http.StatusInternalServerError,
		},
		{
			name: "bad request",
			err:  BadRequest("foo"),
			code: http.StatusBadRequest,
		},
		{
			name: "not found",
			err:  NotFound("foo"),
			code: http.StatusNotFound,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", test.err)
			code := StatusCode(err)
			require.Equal(t, test.code, code)
		})
	}
}
