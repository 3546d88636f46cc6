package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusAndMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{fmt.Errorf("a: %w", ErrUnknownAsset), http.StatusNotFound, "asset doesn't exist"},
		{fmt.Errorf("%w: fmp GET: status 500", ErrProviderFetchFailed), http.StatusBadGateway, "unable to fetch prices"},
		{ErrInsufficientFreshData, http.StatusNotFound, "no sufficiently fresh price data"},
		{ErrDegenerateDivision, http.StatusUnprocessableEntity, "unable to get pair price"},
		{errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.status, Status(tc.err), tc.err.Error())
		require.Equal(t, tc.msg, Message(tc.err), tc.err.Error())
	}
	require.Equal(t, http.StatusOK, Status(nil))
}
