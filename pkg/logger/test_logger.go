package logger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Entry is one captured log call.
type Entry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
	Err     error
}

// TestLogger implements Logger by recording every call instead of
// writing anywhere. Derived loggers share the recorder, so assertions
// made on the root see everything. Safe for concurrent use.
type TestLogger struct {
	rec    *recorder
	fields map[string]interface{}
	err    error
}

type recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewTestLogger returns an empty recording logger.
func NewTestLogger() *TestLogger {
	return &TestLogger{rec: &recorder{}}
}

func (l *TestLogger) emit(level, msg string, extra map[string]interface{}) {
	fields := make(map[string]interface{}, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	l.rec.entries = append(l.rec.entries, Entry{Level: level, Message: msg, Fields: fields, Err: l.err})
}

func (l *TestLogger) derive(extra map[string]interface{}, err error) *TestLogger {
	fields := make(map[string]interface{}, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	if err == nil {
		err = l.err
	}
	return &TestLogger{rec: l.rec, fields: fields, err: err}
}

func (l *TestLogger) Debug(msg string) { l.emit("debug", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.emit("info", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.emit("warn", msg, nil) }
func (l *TestLogger) Error(msg string) { l.emit("error", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.emit("fatal", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.emit("debug", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.emit("info", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.emit("warn", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.emit("error", msg, fields)
}

func (l *TestLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	l.emit("fatal", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.derive(map[string]interface{}{key: value}, nil)
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return l.derive(fields, nil)
}

func (l *TestLogger) WithError(err error) Logger {
	return l.derive(nil, err)
}

func (l *TestLogger) WithContext(ctx context.Context) Logger {
	return l
}

func (l *TestLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

// Entries returns a copy of everything recorded so far.
func (l *TestLogger) Entries() []Entry {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	out := make([]Entry, len(l.rec.entries))
	copy(out, l.rec.entries)
	return out
}

// EntriesAt returns the recorded entries of one level.
func (l *TestLogger) EntriesAt(level string) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// HasMessage reports whether any entry's message contains text.
func (l *TestLogger) HasMessage(text string) bool {
	for _, e := range l.Entries() {
		if strings.Contains(e.Message, text) {
			return true
		}
	}
	return false
}

// Reset drops everything recorded so far.
func (l *TestLogger) Reset() {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	l.rec.entries = nil
}

// String renders the recorded entries, one per line.
func (l *TestLogger) String() string {
	var b strings.Builder
	for _, e := range l.Entries() {
		fmt.Fprintf(&b, "[%s] %s", e.Level, e.Message)
		if len(e.Fields) > 0 {
			fmt.Fprintf(&b, " %v", e.Fields)
		}
		if e.Err != nil {
			fmt.Fprintf(&b, " error=%v", e.Err)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
