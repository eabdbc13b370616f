package tracking

import (
	"context"
	"maps"

	"github.com/LerianStudio/lib-tracking/tracking/channel"
	"github.com/LerianStudio/lib-tracking/tracking/log"
)

type contextKey string

// VisitorContextKey is the context key used to store VisitorContext.
var VisitorContextKey = contextKey("tracking_visitor")

// VisitorContext holds request-scoped facilities attached at ingress: the
// logger and what is known about the visitor.
type VisitorContext struct {
	Logger    log.Logger
	UserData  channel.UserData
	SourceURL string
	RequestID string
}

func visitorFrom(ctx context.Context) VisitorContext {
	if ctx == nil {
		return VisitorContext{}
	}

	if values, ok := ctx.Value(VisitorContextKey).(*VisitorContext); ok && values != nil {
		return *values
	}

	return VisitorContext{}
}

func withVisitor(ctx context.Context, mutate func(*VisitorContext)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	values := visitorFrom(ctx)
	values.UserData = values.UserData.Clone()
	mutate(&values)

	return context.WithValue(ctx, VisitorContextKey, &values)
}

// ContextWithLogger returns a context carrying logger.
func ContextWithLogger(ctx context.Context, logger log.Logger) context.Context {
	return withVisitor(ctx, func(v *VisitorContext) { v.Logger = logger })
}

// LoggerFromContext returns the context logger, or a no-op logger.
//
//nolint:ireturn
func LoggerFromContext(ctx context.Context) log.Logger {
	if logger := visitorFrom(ctx).Logger; logger != nil {
		return logger
	}

	return log.NewNop()
}

// ContextWithUserData merges data into the visitor's user data. Later values win.
func ContextWithUserData(ctx context.Context, data channel.UserData) context.Context {
	return withVisitor(ctx, func(v *VisitorContext) {
		if v.UserData == nil {
			v.UserData = make(channel.UserData, len(data))
		}

		maps.Copy(v.UserData, data)
	})
}

// UserDataFromContext returns a copy of the visitor's user data.
func UserDataFromContext(ctx context.Context) channel.UserData {
	return visitorFrom(ctx).UserData.Clone()
}

// ContextWithSourceURL records the page the visitor is on.
func ContextWithSourceURL(ctx context.Context, sourceURL string) context.Context {
	return withVisitor(ctx, func(v *VisitorContext) { v.SourceURL = sourceURL })
}

// SourceURLFromContext returns the recorded page URL.
func SourceURLFromContext(ctx context.Context) string {
	return visitorFrom(ctx).SourceURL
}

// ContextWithRequestID records the ingress request id.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return withVisitor(ctx, func(v *VisitorContext) { v.RequestID = requestID })
}

// RequestIDFromContext returns the ingress request id.
func RequestIDFromContext(ctx context.Context) string {
	return visitorFrom(ctx).RequestID
}
