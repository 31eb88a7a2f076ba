// Package logging builds the service slog.Logger. Every record is scrubbed of
// card numbers and CVVs before it reaches the output handler.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

var (
	panPattern = regexp.MustCompile(`\b(\d{10,15})(\d{4})\b`)
	cvvPattern = regexp.MustCompile(`(?i)(cvv["']?\s*[:=]\s*["']?)(\d{3,4})(["']?)`)
)

// Mask hides every 14-19 digit run except its last four digits and replaces
// cvv values with ***.
func Mask(s string) string {
	s = panPattern.ReplaceAllStringFunc(s, func(m string) string {
		return strings.Repeat("*", len(m)-4) + m[len(m)-4:]
	})
	return cvvPattern.ReplaceAllString(s, "${1}***${3}")
}

type ctxKey int

const (
	correlationKey ctxKey = iota
	paymentKey
)

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

func CorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationKey).(string)
	return v
}

func WithPaymentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, paymentKey, id)
}

func PaymentID(ctx context.Context) string {
	v, _ := ctx.Value(paymentKey).(string)
	return v
}

func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

// New returns a logger writing json or text records to w.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "json":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return slog.New(NewMaskingHandler(h)), nil
}

type MaskingHandler struct {
	next slog.Handler
}

func NewMaskingHandler(next slog.Handler) *MaskingHandler {
	return &MaskingHandler{next: next}
}

func (h *MaskingHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *MaskingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, Mask(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(maskAttr(a))
		return true
	})
	if id := CorrelationID(ctx); id != "" {
		out.AddAttrs(slog.String("correlationId", id))
	}
	if id := PaymentID(ctx); id != "" {
		out.AddAttrs(slog.String("paymentId", id))
	}
	return h.next.Handle(ctx, out)
}

func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = maskAttr(a)
	}
	return &MaskingHandler{next: h.next.WithAttrs(masked)}
}

func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{next: h.next.WithGroup(name)}
}

func maskAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	switch strings.ToLower(a.Key) {
	case "cvv":
		return slog.String(a.Key, "***")
	case "cardnumber":
		return slog.String(a.Key, maskAllButLastFour(valueString(a.Value)))
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, Mask(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		masked := make([]slog.Attr, len(group))
		for i, g := range group {
			masked[i] = maskAttr(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(masked...)}
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case error:
			return slog.String(a.Key, Mask(v.Error()))
		case fmt.Stringer:
			return slog.String(a.Key, Mask(v.String()))
		}
	}
	return a
}

func valueString(v slog.Value) string {
	if v.Kind() == slog.KindAny {
		if s, ok := v.Any().(fmt.Stringer); ok {
			return s.String()
		}
	}
	return v.String()
}

func maskAllButLastFour(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
