package relay

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Logger provides structured logging for the executor.
type Logger interface {
	Debug(ctx context.Context, msg string, keysAndValues ...any)
	Info(ctx context.Context, msg string, keysAndValues ...any)
	Error(ctx context.Context, msg string, keysAndValues ...any)
}

// nopLogger discards everything. It is the default.
type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}

// NewStdLogger adapts a standard library logger to the Logger interface,
// rendering key-value pairs as key=value fields. A nil logger falls back to
// log.Default.
func NewStdLogger(l *log.Logger) Logger {
	if l == nil {
		l = log.Default()
	}
	return &stdLogger{l: l}
}

type stdLogger struct {
	l *log.Logger
}

func (s *stdLogger) Debug(_ context.Context, msg string, kv ...any) { s.print("DEBUG", msg, kv) }
func (s *stdLogger) Info(_ context.Context, msg string, kv ...any)  { s.print("INFO", msg, kv) }
func (s *stdLogger) Error(_ context.Context, msg string, kv ...any) { s.print("ERROR", msg, kv) }

func (s *stdLogger) print(level, msg string, kv []any) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(" ")
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	if len(kv)%2 != 0 {
		fmt.Fprintf(&b, " %v", kv[len(kv)-1])
	}
	s.l.Print(b.String())
}
