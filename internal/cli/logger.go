package cli

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newZapLogger builds a console logger at level writing to w.
func newZapLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "" // the CLI is interactive; timestamps are noise
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

// zapAdapter satisfies the service, replica and audit logger interfaces with
// a sugared zap logger. Arguments are alternating key/value pairs.
type zapAdapter struct {
	s *zap.SugaredLogger
}

func newLogAdapter(l *zap.Logger) zapAdapter {
	return zapAdapter{s: l.Sugar()}
}

func (a zapAdapter) Debug(msg string, args ...any) { a.s.Debugw(msg, args...) }
func (a zapAdapter) Info(msg string, args ...any)  { a.s.Infow(msg, args...) }
func (a zapAdapter) Warn(msg string, args ...any)  { a.s.Warnw(msg, args...) }
func (a zapAdapter) Error(msg string, args ...any) { a.s.Errorw(msg, args...) }
