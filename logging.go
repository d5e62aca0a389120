package pushqueue

import "go.uber.org/zap"

// Logger is the structured-logging seam used for the "logged, not
// surfaced" error paths in spec.md §7 (unknown-id no-ops, handler-error-
// in-failure-path, pruner-internal-error). It is intentionally narrow: a
// library has no business mandating a logging framework on its caller, but
// this repo has no DI runtime to source one from (see DESIGN.md), so the
// default implementation is backed directly by the teacher's own logging
// dependency, go.uber.org/zap.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// zapLogger adapts *zap.SugaredLogger to Logger.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps a *zap.SugaredLogger as a pushqueue Logger.
func NewZapLogger(sugar *zap.SugaredLogger) Logger {
	return &zapLogger{sugar: sugar}
}

func (l *zapLogger) Debugw(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *zapLogger) Infow(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *zapLogger) Warnw(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *zapLogger) Errorw(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }

// noopLogger discards everything; it's the default when no Logger option
// is supplied to NewQueue.
type noopLogger struct{}

func (noopLogger) Debugw(string, ...interface{}) {}
func (noopLogger) Infow(string, ...interface{})  {}
func (noopLogger) Warnw(string, ...interface{})  {}
func (noopLogger) Errorw(string, ...interface{}) {}

// defaultZapLogger builds a sensible production zap logger for callers
// that want real output without wiring their own, mirroring the teacher's
// pattern of a ready-to-use default logger.
func defaultZapLogger() Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return noopLogger{}
	}
	return NewZapLogger(l.Sugar())
}
