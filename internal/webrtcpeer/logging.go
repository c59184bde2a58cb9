package webrtcpeer

import (
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// slogFactory routes pion's internal logging into slog so the whole process
// shares one log stream. Pion's trace level maps to debug; everything else
// maps 1:1.
type slogFactory struct {
	log *slog.Logger
}

func newLoggerFactory(logger *slog.Logger) logging.LoggerFactory {
	return &slogFactory{log: logger}
}

func (f *slogFactory) NewLogger(scope string) logging.LeveledLogger {
	return &slogLeveled{log: f.log.With("scope", scope)}
}

type slogLeveled struct {
	log *slog.Logger
}

func (l *slogLeveled) Trace(msg string) { l.log.Debug(msg) }
func (l *slogLeveled) Tracef(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *slogLeveled) Debug(msg string) { l.log.Debug(msg) }
func (l *slogLeveled) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *slogLeveled) Info(msg string) { l.log.Info(msg) }
func (l *slogLeveled) Infof(format string, args ...interface{}) {
	l.log.Info(fmt.Sprintf(format, args...))
}

func (l *slogLeveled) Warn(msg string) { l.log.Warn(msg) }
func (l *slogLeveled) Warnf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *slogLeveled) Error(msg string) { l.log.Error(msg) }
func (l *slogLeveled) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}
