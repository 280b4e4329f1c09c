package contexthelpers

import (
	"context"
)

// VisitorID returns the identifier of the visitor whose planning session the request belongs to.
func VisitorID(ctx context.Context) string {
	visitorID, ok := ctx.Value(visitorIDContextKey).(string)
	if !ok {
		return ""
	}

	return visitorID
}

func CurrentPath(ctx context.Context) string {
	currentPath, ok := ctx.Value(currentPathContextKey).(string)
	if !ok {
		return ""
	}

	return currentPath
}

func CSRFToken(ctx context.Context) string {
	csrfToken, ok := ctx.Value(csrfTokenContextKey).(string)
	if !ok {
		return ""
	}

	return csrfToken
}

func CSPNonce(ctx context.Context) string {
	cspNonce, ok := ctx.Value(cspNonceContextKey).(string)
	if !ok {
		return ""
	}

	return cspNonce
}
