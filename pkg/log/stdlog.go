package log

import (
	stdlog "log"
	"log/slog"
)

// stdWriter adapts a Logger into an io.Writer for *log.Logger, treating each
// line written as an Info-level message.
type stdWriter struct {
	logger Logger
}

func (w stdWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	w.logger.Info(msg)
	return len(p), nil
}

// ToStdLogger returns a *log.Logger that writes through the given Logger.
func ToStdLogger(logger Logger) *stdlog.Logger {
	return stdlog.New(stdWriter{logger: logger}, "", 0)
}

// RedirectStdLog redirects the standard library's default logger (and
// slog's default logger) through logger, returning a restore function.
func RedirectStdLog(logger Logger) func() {
	prevOut := stdlog.Writer()
	prevFlags := stdlog.Flags()
	stdlog.SetOutput(stdWriter{logger: logger})
	stdlog.SetFlags(0)

	prevSlog := slog.Default()
	if bl, ok := logger.(*BaseLogger); ok {
		slog.SetDefault(bl.slogLogger)
	}

	return func() {
		stdlog.SetOutput(prevOut)
		stdlog.SetFlags(prevFlags)
		slog.SetDefault(prevSlog)
	}
}
