package contexthelpers_test

import (
	"net/http/httptest"
	"testing"

	"github.com/myrjola/mavis/internal/contexthelpers"
	"github.com/stretchr/testify/require"
)

func TestSetters(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	ctx := r.Context()
	require.Empty(t, contexthelpers.VisitorID(ctx))
	require.Empty(t, contexthelpers.CurrentPath(ctx))
	require.Empty(t, contexthelpers.CSRFToken(ctx))
	require.Empty(t, contexthelpers.CSPNonce(ctx))

	r = contexthelpers.SetVisitorID(r, "visitor")
	r = contexthelpers.SetCurrentPath(r, "/")
	r = contexthelpers.SetCSRFToken(r, "token")
	r = contexthelpers.SetCSPNonce(r, "nonce")
	ctx = r.Context()
	require.Equal(t, "visitor", contexthelpers.VisitorID(ctx))
	require.Equal(t, "/", contexthelpers.CurrentPath(ctx))
	require.Equal(t, "token", contexthelpers.CSRFToken(ctx))
	require.Equal(t, "nonce", contexthelpers.CSPNonce(ctx))
}
