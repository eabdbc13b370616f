package opentelemetry

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/LerianStudio/lib-tracking/tracking/security"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ObfuscatingSpanProcessor masks sensitive string attributes of a span before
// handing it to the next processor. An attribute is masked when its key names
// a credential, or names visitor data whose value is not already a SHA-256
// digest. JSON object values are walked with security.RedactParams.
type ObfuscatingSpanProcessor struct {
	next sdktrace.SpanProcessor
}

var _ sdktrace.SpanProcessor = (*ObfuscatingSpanProcessor)(nil)

type maskedSpan struct {
	sdktrace.ReadOnlySpan
	attrs []attribute.KeyValue
}

func (s maskedSpan) Attributes() []attribute.KeyValue { return s.attrs }

// NewObfuscatingSpanProcessor wraps next. A nil next makes the processor a sink.
func NewObfuscatingSpanProcessor(next sdktrace.SpanProcessor) *ObfuscatingSpanProcessor {
	return &ObfuscatingSpanProcessor{next: next}
}

// OnStart implements sdktrace.SpanProcessor.
func (p *ObfuscatingSpanProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	if p.next != nil {
		p.next.OnStart(ctx, s)
	}
}

// OnEnd implements sdktrace.SpanProcessor. The ended span is read-only, so
// the next processor receives a view with the masked attributes.
func (p *ObfuscatingSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	if s == nil || p.next == nil {
		return
	}

	attrs := s.Attributes()

	var masked []attribute.KeyValue

	for i, attr := range attrs {
		if attr.Value.Type() != attribute.STRING {
			continue
		}

		value := attr.Value.AsString()

		replaced := obfuscateAttribute(string(attr.Key), value)
		if replaced == value {
			continue
		}

		if masked == nil {
			masked = make([]attribute.KeyValue, len(attrs))
			copy(masked, attrs)
		}

		masked[i] = attribute.String(string(attr.Key), replaced)
	}

	if masked == nil {
		p.next.OnEnd(s)

		return
	}

	p.next.OnEnd(maskedSpan{ReadOnlySpan: s, attrs: masked})
}

// Shutdown implements sdktrace.SpanProcessor.
func (p *ObfuscatingSpanProcessor) Shutdown(ctx context.Context) error {
	if p.next != nil {
		return p.next.Shutdown(ctx)
	}

	return nil
}

// ForceFlush implements sdktrace.SpanProcessor.
func (p *ObfuscatingSpanProcessor) ForceFlush(ctx context.Context) error {
	if p.next != nil {
		return p.next.ForceFlush(ctx)
	}

	return nil
}

func obfuscateAttribute(key, value string) string {
	if !utf8.ValidString(value) {
		value = strings.ToValidUTF8(value, "�")
	}

	// Keys are dotted ("app.user_data.em"); the last segment names the field.
	field := key
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		field = key[i+1:]
	}

	if security.IsSensitiveField(field) {
		if security.IsPersonalField(field) && security.IsHashed(value) {
			return value
		}

		return security.RedactedValue
	}

	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "{") {
		return value
	}

	var object map[string]any
	if err := json.Unmarshal([]byte(trimmed), &object); err != nil {
		return value
	}

	redacted := security.RedactParams(object)
	if reflect.DeepEqual(redacted, object) {
		return value
	}

	out, err := json.Marshal(redacted)
	if err != nil {
		return value
	}

	return string(out)
}
