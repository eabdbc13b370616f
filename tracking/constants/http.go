package constant

// Request headers read by the middleware and forwarded by the relay.
const (
	HeaderUserAgent    = "User-Agent"
	HeaderRealIP       = "X-Real-Ip"
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderReferer      = "Referer"
	HeaderContentType  = "Content-Type"
	// HeaderID carries the request id, generated when the client sent none.
	HeaderID = "X-Request-Id"
)

// Titles of the error envelope.
const (
	DefaultErrorTitle         = "request_failed"
	TitleInvalidPayload       = "invalid_payload"
	TitleUnsupportedMediaType = "unsupported_media_type"
	TitleUpstreamDisabled     = "upstream_disabled"
	// TitleUpstreamPrefix is followed by the relay outcome, as in "upstream_rejected".
	TitleUpstreamPrefix = "upstream_"
)

// DefaultInternalErrorMessage replaces the message of unclassified errors so
// internal details never reach the client.
const DefaultInternalErrorMessage = "An internal error occurred"

// DefaultVersion is reported by /version when the build set none.
const DefaultVersion = "0.0.0"
