package http

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking"
	cn "github.com/LerianStudio/lib-tracking/tracking/constants"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/LerianStudio/lib-tracking/tracking/security"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// maxObfuscationDepth limits recursion depth when obfuscating nested JSON structures.
const maxObfuscationDepth = 32

// RequestInfo is a struct design to store http access log data.
type RequestInfo struct {
	Method        string
	URI           string
	Referer       string
	RemoteAddress string
	Status        int
	Date          time.Time
	Duration      time.Duration
	UserAgent     string
	RequestID     string
	Protocol      string
	Size          int
	Body          string
}

// NewRequestInfo creates an instance of RequestInfo. Sensitive body fields are
// masked unless logBodies is false, in which case the body is dropped.
func NewRequestInfo(c *fiber.Ctx, logBodies bool) *RequestInfo {
	referer := "-"
	if c.Get(cn.HeaderReferer) != "" {
		referer = c.Get(cn.HeaderReferer)
	}

	body := ""
	if logBodies && c.Request().Header.ContentLength() > 0 {
		body = obfuscateBody(c.Get(cn.HeaderContentType), c.Body())
	}

	return &RequestInfo{
		RequestID:     c.Get(cn.HeaderID),
		Method:        c.Method(),
		URI:           c.OriginalURL(),
		Referer:       referer,
		UserAgent:     c.Get(cn.HeaderUserAgent),
		RemoteAddress: c.IP(),
		Protocol:      c.Protocol(),
		Date:          time.Now().UTC(),
		Body:          body,
	}
}

// CLFString produces a log entry format similar to Common Log Format (CLF).
func (r *RequestInfo) CLFString() string {
	return strings.Join([]string{
		r.RemoteAddress,
		"-",
		"-",
		r.Protocol,
		r.Date.Format("[02/Jan/2006:15:04:05 -0700]"),
		`"` + r.Method + " " + r.URI + `"`,
		strconv.Itoa(r.Status),
		strconv.Itoa(r.Size),
		r.Referer,
		r.UserAgent,
	}, " ")
}

// String implements fmt.Stringer.
func (r *RequestInfo) String() string {
	return r.CLFString()
}

// finish stamps duration, status and size from the response.
func (r *RequestInfo) finish(c *fiber.Ctx) {
	r.Duration = time.Now().UTC().Sub(r.Date)
	r.Status = c.Response().StatusCode()
	r.Size = len(c.Response().Body())
}

type logMiddleware struct {
	logger    log.Logger
	logBodies bool
	skipPaths map[string]struct{}
}

// LogMiddlewareOption configures WithHTTPLogging.
type LogMiddlewareOption func(l *logMiddleware)

// WithCustomLogger sets the access logger.
func WithCustomLogger(logger log.Logger) LogMiddlewareOption {
	return func(l *logMiddleware) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRequestBodies logs request bodies with sensitive fields masked.
func WithRequestBodies(enabled bool) LogMiddlewareOption {
	return func(l *logMiddleware) {
		l.logBodies = enabled
	}
}

// WithSkipPaths excludes paths from access logging.
func WithSkipPaths(paths ...string) LogMiddlewareOption {
	return func(l *logMiddleware) {
		for _, path := range paths {
			l.skipPaths[path] = struct{}{}
		}
	}
}

func buildOpts(opts ...LogMiddlewareOption) *logMiddleware {
	mid := &logMiddleware{
		logger:    log.NewNop(),
		skipPaths: map[string]struct{}{"/health": {}, "/metrics": {}},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(mid)
		}
	}

	return mid
}

// WithHTTPLogging assigns a request id, stores a request-scoped logger in the
// user context and writes one CLF access line per request.
func WithHTTPLogging(opts ...LogMiddlewareOption) fiber.Handler {
	mid := buildOpts(opts...)

	return func(c *fiber.Ctx) error {
		if _, skip := mid.skipPaths[c.Path()]; skip {
			return c.Next()
		}

		requestID := setRequestHeaderID(c)
		info := NewRequestInfo(c, mid.logBodies)

		logger := mid.logger.With(log.String("request_id", requestID))

		ctx := tracking.ContextWithLogger(c.UserContext(), logger)
		ctx = tracking.ContextWithRequestID(ctx, requestID)
		c.SetUserContext(ctx)

		err := c.Next()

		info.finish(c)

		fields := []log.Field{
			log.Int("status", info.Status),
			log.Duration("duration", info.Duration),
		}

		if info.Body != "" {
			fields = append(fields, log.String("body", info.Body))
		}

		logger.Log(c.UserContext(), log.LevelInfo, info.CLFString(), fields...)

		return err
	}
}

func setRequestHeaderID(c *fiber.Ctx) string {
	headerID := strings.TrimSpace(c.Get(cn.HeaderID))

	if headerID == "" {
		headerID = uuid.New().String()
		c.Request().Header.Set(cn.HeaderID, headerID)
	}

	c.Set(cn.HeaderID, headerID)

	return headerID
}

func obfuscateBody(contentType string, body []byte) string {
	if !strings.Contains(contentType, fiber.MIMEApplicationJSON) {
		return "[" + strconv.Itoa(len(body)) + " bytes]"
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return "[invalid json]"
	}

	data = obfuscateValue(data, 0)

	masked, err := json.Marshal(data)
	if err != nil {
		return "[invalid json]"
	}

	return string(masked)
}

func obfuscateValue(value any, depth int) any {
	if depth >= maxObfuscationDepth {
		return security.RedactedValue
	}

	switch v := value.(type) {
	case map[string]any:
		for key, item := range v {
			if security.IsSensitiveField(key) {
				if s, ok := item.(string); ok && security.IsHashed(s) {
					continue
				}

				v[key] = security.RedactedValue

				continue
			}

			v[key] = obfuscateValue(item, depth+1)
		}

		return v
	case []any:
		for i, item := range v {
			v[i] = obfuscateValue(item, depth+1)
		}

		return v
	default:
		return v
	}
}
