package contexthelpers

import (
	"context"
	"net/http"
)

func SetVisitorID(r *http.Request, visitorID string) *http.Request {
	ctx := context.WithValue(r.Context(), visitorIDContextKey, visitorID)
	return r.WithContext(ctx)
}

func SetCurrentPath(r *http.Request, currentPath string) *http.Request {
	ctx := r.Context()
	ctx = context.WithValue(ctx, currentPathContextKey, currentPath)
	return r.WithContext(ctx)
}

func SetCSRFToken(r *http.Request, csrfToken string) *http.Request {
	ctx := context.WithValue(r.Context(), csrfTokenContextKey, csrfToken)
	return r.WithContext(ctx)
}

func SetCSPNonce(r *http.Request, cspNonce string) *http.Request {
	ctx := context.WithValue(r.Context(), cspNonceContextKey, cspNonce)
	return r.WithContext(ctx)
}
