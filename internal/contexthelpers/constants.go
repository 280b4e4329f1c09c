package contexthelpers

type contextKey string

const visitorIDContextKey = contextKey("visitorID")
const currentPathContextKey = contextKey("currentPath")
const csrfTokenContextKey = contextKey("csrfToken")
const cspNonceContextKey = contextKey("cspNonce")
