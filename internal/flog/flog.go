// Package flog is the process-wide diagnostic logger: a leveled,
// channel-backed sink so that hot paths (transport reader loops, the
// share engine) never block on I/O to log a warning.
//
// It does not log packet payloads — see internal/logger for the
// per-connection append-only packet log, which is a distinct component
// with a distinct durability contract.
package flog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Level int

const None Level = -1
const (
	Debug Level = iota
	Info
	Warn
	Error
	Fatal
)

var (
	mu       sync.RWMutex
	minLevel = Info
	writer   io.Writer = os.Stdout
	logCh              = make(chan string, 1024)
	dropped  atomic.Uint64
	started  atomic.Bool
)

// Dropped returns the number of log messages dropped due to channel full.
func Dropped() uint64 { return dropped.Load() }

var levelStrings = [...]string{
	Debug: "DEBUG",
	Info:  "INFO",
	Warn:  "WARN",
	Error: "ERROR",
	Fatal: "FATAL",
}

// UseDirectory points the logger at a rotating file
// <dir>/telerelayd.log instead of stdout. Call before the first log
// line, or accept that already-buffered lines land on the old sink.
func UseDirectory(dir string) {
	mu.Lock()
	defer mu.Unlock()
	writer = &lumberjack.Logger{
		Filename:   dir + string(os.PathSeparator) + "telerelayd.log",
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// SetWriter overrides the sink directly; mainly for tests.
func SetWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	writer = w
}

func SetLevel(l int) {
	minLevel = Level(l)
	if l == -1 {
		return
	}
	if started.CompareAndSwap(false, true) {
		go func() {
			for msg := range logCh {
				mu.RLock()
				w := writer
				mu.RUnlock()
				fmt.Fprint(w, msg)
			}
		}()
	}
}

// WErr filters expected, non-actionable errors (closed connections,
// cancellation, EOF) out of the log stream. It returns nil for those
// so the caller can skip the whole log line.
func WErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func logf(level Level, format string, args ...any) {
	if level < minLevel || minLevel == None {
		return
	}

	// Check channel capacity before formatting to avoid wasted allocations
	if len(logCh) == cap(logCh) {
		dropped.Add(1)
		return
	}

	for _, arg := range args {
		if err, ok := arg.(error); ok {
			if WErr(err) == nil {
				return
			}
		}
	}

	var levelStr string
	if int(level) < len(levelStrings) {
		levelStr = levelStrings[level]
	} else {
		levelStr = "UNKNOWN"
	}

	now := time.Now().Format("2006-01-02 15:04:05.000")
	line := fmt.Sprintf("%s [%s] %s\n", now, levelStr, fmt.Sprintf(format, args...))

	select {
	case logCh <- line:
	default:
		dropped.Add(1)
	}
}

func (l Level) String() string {
	if int(l) >= 0 && int(l) < len(levelStrings) {
		return levelStrings[l]
	}
	if l == None {
		return "None"
	}
	return "UNKNOWN"
}

func Debugf(format string, args ...any) { logf(Debug, format, args...) }
func Infof(format string, args ...any)  { logf(Info, format, args...) }
func Warnf(format string, args ...any)  { logf(Warn, format, args...) }
func Errorf(format string, args ...any) { logf(Error, format, args...) }
func Fatalf(format string, args ...any) {
	logf(Fatal, format, args...)
	// flush logs (optional: small sleep to let goroutine write)
	time.Sleep(10 * time.Millisecond)
	os.Exit(1)
}

func Close() { close(logCh) }
