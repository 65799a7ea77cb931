package routed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"sync"
	"time"
)

// Logger is the structured logger used by an `Engine` to record
// request-lifecycle events and operational diagnostics.
//
// Every record is a flat map of fields plus a message, rendered as one
// line-delimited JSON object per call. The zero value is not usable; create
// one with newLogger.
type Logger struct {
	engine *Engine

	bufferPool *sync.Pool
	mutex      *sync.Mutex

	// Output is the destination the `Logger` writes to. Default: os.Stdout.
	Output io.Writer
}

// logLevel is the severity of a log record.
type logLevel uint8

// log levels, ordered by increasing severity.
const (
	lvlDebug logLevel = iota
	lvlInfo
	lvlWarn
	lvlError
)

func (l logLevel) String() string {
	switch l {
	case lvlDebug:
		return "debug"
	case lvlInfo:
		return "info"
	case lvlWarn:
		return "warn"
	case lvlError:
		return "error"
	}
	return "unknown"
}

// newLogger returns a new `Logger` bound to e.
func newLogger(e *Engine) *Logger {
	return &Logger{
		engine: e,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 256))
			},
		},
		mutex:  &sync.Mutex{},
		Output: os.Stdout,
	}
}

// Fields is a convenience alias for the structured payload attached to a log
// record.
type Fields map[string]interface{}

// Debug logs msg at debug level with the given structured fields.
func (l *Logger) Debug(msg string, fields Fields) { l.log(lvlDebug, msg, fields) }

// Info logs msg at info level with the given structured fields.
func (l *Logger) Info(msg string, fields Fields) { l.log(lvlInfo, msg, fields) }

// Warn logs msg at warn level with the given structured fields.
func (l *Logger) Warn(msg string, fields Fields) { l.log(lvlWarn, msg, fields) }

// Error logs msg at error level with the given structured fields.
func (l *Logger) Error(msg string, fields Fields) { l.log(lvlError, msg, fields) }

func (l *Logger) log(lvl logLevel, msg string, fields Fields) {
	var cfg EngineConfig
	if l.engine != nil {
		cfg = l.engine.snapshotConfig()
		if !cfg.LogEnabled {
			return
		}
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	buf := l.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		l.bufferPool.Put(buf)
	}()

	record := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		record[k] = v
	}
	record["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	record["level"] = lvl.String()
	record["message"] = msg
	if l.engine != nil && cfg.AppName != "" {
		record["app"] = cfg.AppName
	}

	if lvl == lvlError {
		if _, file, line, ok := runtime.Caller(2); ok {
			record["caller"] = fmt.Sprintf("%s:%d", path.Base(file), line)
		}
	}

	enc := json.NewEncoder(buf)
	if err := enc.Encode(record); err == nil {
		l.Output.Write(buf.Bytes())
	}
}
