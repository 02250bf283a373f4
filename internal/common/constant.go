package common

// SessionTokenHeaderName is the HTTP header and gRPC metadata key carrying
// the session token on requests that bind identity via token.
const SessionTokenHeaderName = "token"

// GRPCSessionTokenKey is the gRPC metadata key for the session token.
const GRPCSessionTokenKey = "session_token"
