package redisjobstore

import (
	"log"

	"go.uber.org/zap"
)

// Logger is the facade's injected logging sink, matching the interface
// shape of quintans-go-scheduler's scheduler.Logger in the retrieval pack.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// StdLogger wraps the standard log package, the way huaban-periodic itself
// logs everywhere in db/ and sched/ via bare log.Printf.
type StdLogger struct{}

func (StdLogger) Info(format string, args ...any)  { log.Printf("INFO "+format, args...) }
func (StdLogger) Warn(format string, args ...any)  { log.Printf("WARN "+format, args...) }
func (StdLogger) Error(format string, args ...any) { log.Printf("ERROR "+format, args...) }

// ZapLogger adapts a *zap.Logger to the Logger interface for hosts that
// already run structured logging.
type ZapLogger struct {
	L *zap.Logger
}

func (z ZapLogger) Info(format string, args ...any) {
	z.L.Sugar().Infof(format, args...)
}

func (z ZapLogger) Warn(format string, args ...any) {
	z.L.Sugar().Warnf(format, args...)
}

func (z ZapLogger) Error(format string, args ...any) {
	z.L.Sugar().Errorf(format, args...)
}
