// Structured logging for fiberloop, backed by github.com/joeycumines/logiface
// (the teacher package's own structured-logging library) instead of a
// hand-rolled Logger interface. A package-level logger is configurable via
// SetLogger; it defaults to disabled, so the module stays silent unless a
// caller opts in.
package fiberloop

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
)

var (
	globalLoggerMu sync.RWMutex
	globalLogger   = newDisabledLogger()
)

// SetLogger installs logger as the package-level structured logger. NewLoop
// uses it for a Loop created without WithLogger (or with a nil one); no
// other part of the package logs. Pass nil to restore the disabled default.
func SetLogger(logger *logiface.Logger[*textEvent]) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	if logger == nil {
		globalLogger = newDisabledLogger()
		return
	}
	globalLogger = logger
}

// NewTextLogger builds a logiface.Logger that writes human-readable lines to
// out at or above level, suitable for passing to SetLogger.
func NewTextLogger(out *log.Logger, level logiface.Level) *logiface.Logger[*textEvent] {
	return logiface.New[*textEvent](
		logiface.WithEventFactory[*textEvent](textEventFactory{}),
		logiface.WithWriter[*textEvent](textEventWriter{out: out}),
		logiface.WithLevel[*textEvent](level),
	)
}

func newDisabledLogger() *logiface.Logger[*textEvent] {
	return logiface.New[*textEvent](
		logiface.WithEventFactory[*textEvent](textEventFactory{}),
		logiface.WithWriter[*textEvent](textEventWriter{out: log.New(os.Stderr, "", 0)}),
		logiface.WithLevel[*textEvent](logiface.LevelDisabled),
	)
}

// logger returns the current package-level logger.
func logger() *logiface.Logger[*textEvent] {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

// textEvent is a minimal logiface.Event implementation that accumulates
// fields into a line buffer. It embeds UnimplementedEvent per the logiface
// contract and implements only the field kinds this package emits.
type textEvent struct {
	logiface.UnimplementedEvent
	level  logiface.Level
	msg    string
	fields []string
}

func (e *textEvent) Level() logiface.Level { return e.level }

func (e *textEvent) AddField(key string, val any) {
	e.fields = append(e.fields, fmt.Sprintf("%s=%v", key, val))
}

func (e *textEvent) AddMessage(msg string) bool {
	e.msg = msg
	return true
}

func (e *textEvent) AddError(err error) bool {
	e.fields = append(e.fields, fmt.Sprintf("err=%v", err))
	return true
}

func (e *textEvent) AddString(key string, val string) bool {
	e.fields = append(e.fields, fmt.Sprintf("%s=%q", key, val))
	return true
}

func (e *textEvent) AddInt(key string, val int) bool {
	e.fields = append(e.fields, fmt.Sprintf("%s=%d", key, val))
	return true
}

func (e *textEvent) AddDuration(key string, val time.Duration) bool {
	e.fields = append(e.fields, fmt.Sprintf("%s=%s", key, val))
	return true
}

func (e *textEvent) AddBool(key string, val bool) bool {
	e.fields = append(e.fields, fmt.Sprintf("%s=%t", key, val))
	return true
}

type textEventFactory struct{}

func (textEventFactory) NewEvent(level logiface.Level) *textEvent {
	return &textEvent{level: level}
}

type textEventWriter struct {
	out *log.Logger
}

func (w textEventWriter) Write(e *textEvent) error {
	line := e.msg
	for _, f := range e.fields {
		line += " " + f
	}
	w.out.Printf("[%s] %s", e.level, line)
	return nil
}
