package utils

// Context keys set by the session middleware.
const (
	ContextUserID    = "userID"
	ContextLogger    = "logger"
	ContextRequestID = "requestID"
)

// RequestIDHeader carries the request id on responses.
const RequestIDHeader = "X-Request-ID"
