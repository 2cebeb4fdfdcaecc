package common

// AuthorizationHeaderName is the HTTP header carrying the bearer access token.
const AuthorizationHeaderName = "Authorization"

// TokenExpiredReason is the machine-readable reason the server puts into a
// 401 body when the access token is expired (as opposed to invalid). The
// client refreshes and retries exactly once when it sees this reason.
const TokenExpiredReason = "token expired"
