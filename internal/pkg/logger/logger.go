package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents the severity of a log entry.
type Level int32

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel maps a level name to a Level. Unknown names yield INFO.
func ParseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	}
	return INFO
}

// Logger writes one JSON object per line. Level and redaction can be
// changed while other goroutines are logging.
type Logger struct {
	level     atomic.Int32
	redactPII atomic.Bool
	mu        sync.Mutex
	out       io.Writer
}

// New returns a Logger writing to out at INFO with redaction enabled.
func New(out io.Writer) *Logger {
	l := &Logger{out: out}
	l.level.Store(int32(INFO))
	l.redactPII.Store(true)
	return l
}

var defaultLogger = New(os.Stderr)

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.level.Store(int32(l)) }

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) { defaultLogger.redactPII.Store(r) }

// SetOutput redirects the default logger.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defaultLogger.out = w
	defaultLogger.mu.Unlock()
}

func Debug(msg string, fields ...interface{}) { defaultLogger.Log(DEBUG, msg, fields...) }

func Info(msg string, fields ...interface{}) { defaultLogger.Log(INFO, msg, fields...) }

func Warn(msg string, fields ...interface{}) { defaultLogger.Log(WARN, msg, fields...) }

func Error(msg string, fields ...interface{}) { defaultLogger.Log(ERROR, msg, fields...) }

// Log writes msg with key/value fields if level is enabled. A trailing key
// without a value is dropped.
func (l *Logger) Log(level Level, msg string, fields ...interface{}) {
	if int32(level) < l.level.Load() {
		return
	}
	data, err := json.Marshal(l.entry(level, msg, fields...))
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(data, '\n'))
}

func (l *Logger) entry(level Level, msg string, fields ...interface{}) map[string]interface{} {
	e := make(map[string]interface{}, 3+len(fields)/2)
	e["time"] = time.Now().UTC().Format(time.RFC3339)
	e["level"] = level.String()
	e["msg"] = msg

	redact := l.redactPII.Load()
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		var val string
		switch v := fields[i+1].(type) {
		case error:
			val = v.Error()
		case fmt.Stringer:
			val = v.String()
		default:
			val = fmt.Sprint(v)
		}
		if redact {
			val = redactPIIValue(key, val)
		}
		e[key] = val
	}
	return e
}
