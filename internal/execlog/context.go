package execlog

import "context"

type logKey struct{}
type spanKey struct{}

// WithLog embeds the run's trace recorder in a context.
func WithLog(ctx context.Context, l *Log) context.Context {
	return context.WithValue(ctx, logKey{}, l)
}

// FromContext extracts the trace recorder. A missing recorder yields nil,
// which is a valid no-op Log.
func FromContext(ctx context.Context) *Log {
	l, _ := ctx.Value(logKey{}).(*Log)
	return l
}

// WithSpan embeds the caller's span so a child execution can link its own
// entry to its parent.
func WithSpan(ctx context.Context, s *Span) context.Context {
	return context.WithValue(ctx, spanKey{}, s)
}

// SpanFromContext extracts the caller's span, or nil at the root.
func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}
