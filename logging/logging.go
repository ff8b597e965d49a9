// Package logging provides a leveled, per-module logging backend built on
// gopkg.in/op/go-logging.v1. Every package that wants a logger calls
// Get(module) after Init has installed the backend; before Init, Get
// returns loggers that write to stderr at INFO so packages can hold a
// *logging.Logger at init time without caring about start order.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/op/go-logging.v1"
)

// Backend owns where log records go and at what level they are cut off.
type Backend struct {
	logging.LeveledBackend
	mu sync.RWMutex

	backend logging.LeveledBackend
	w       io.WriteCloser

	file  string
	level string
}

// Log implements logging.Backend.
func (b *Backend) Log(level logging.Level, calldepth int, record *logging.Record) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.backend.Log(level, calldepth, record)
}

// GetLevel implements logging.Leveled.
func (b *Backend) GetLevel(module string) logging.Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.backend.GetLevel(module)
}

// SetLevel implements logging.Leveled.
func (b *Backend) SetLevel(level logging.Level, module string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	b.backend.SetLevel(level, module)
}

// IsEnabledFor implements logging.Leveled.
func (b *Backend) IsEnabledFor(level logging.Level, module string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.backend.IsEnabledFor(level, module)
}

// GetLogger returns a per-module logger bound to this backend.
func (b *Backend) GetLogger(module string) *logging.Logger {
	l := logging.MustGetLogger(module)
	l.SetBackend(b)
	return l
}

func (b *Backend) open() error {
	lvl, err := levelFromString(b.level)
	if err != nil {
		return err
	}

	if b.file == "" {
		b.w = os.Stdout
	} else {
		flags := os.O_CREATE | os.O_APPEND | os.O_WRONLY
		f, err := os.OpenFile(b.file, flags, 0600)
		if err != nil {
			return fmt.Errorf("logging: failed to open log file: %w", err)
		}
		b.w = f
	}

	logFmt := logging.MustStringFormatter("%{time:15:04:05.000} %{level:.4s} %{module}: %{message}")
	base := logging.NewLogBackend(b.w, "", 0)
	formatted := logging.NewBackendFormatter(base, logFmt)
	b.backend = logging.AddModuleLevel(formatted)
	b.backend.SetLevel(lvl, "")
	return nil
}

// New builds a Backend writing to file (stdout if empty) at level.
func New(file, level string) (*Backend, error) {
	b := &Backend{file: file, level: level}
	if err := b.open(); err != nil {
		return nil, err
	}
	return b, nil
}

// Rotate closes and reopens the underlying log file. Wire this to SIGHUP
// in cmd/raccessd for external log rotation tools.
func (b *Backend) Rotate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.w != nil {
		if err := b.w.Close(); err != nil {
			return err
		}
	}
	return b.open()
}

func levelFromString(l string) (logging.Level, error) {
	switch strings.ToUpper(l) {
	case "ERROR":
		return logging.ERROR, nil
	case "WARNING":
		return logging.WARNING, nil
	case "NOTICE":
		return logging.NOTICE, nil
	case "INFO":
		return logging.INFO, nil
	case "DEBUG":
		return logging.DEBUG, nil
	default:
		return logging.CRITICAL, fmt.Errorf("logging: invalid level %q", l)
	}
}

var (
	installOnce sync.Once
	active      *Backend
	mu          sync.RWMutex
)

// Init installs the process-wide logging backend. Calling it more than
// once is a no-op; the first call wins.
func Init(file, level string) error {
	var err error
	installOnce.Do(func() {
		var b *Backend
		b, err = New(file, level)
		if err != nil {
			return
		}
		mu.Lock()
		active = b
		mu.Unlock()
	})
	return err
}

// Get returns a per-module logger. Before Init is called it logs to
// stderr at INFO so early startup errors are never silently lost.
func Get(module string) *logging.Logger {
	mu.RLock()
	b := active
	mu.RUnlock()

	if b == nil {
		l := logging.MustGetLogger(module)
		base := logging.NewLogBackend(os.Stderr, "", 0)
		formatted := logging.NewBackendFormatter(base, logging.MustStringFormatter(
			"%{time:15:04:05.000} %{level:.4s} %{module}: %{message}"))
		leveled := logging.AddModuleLevel(formatted)
		leveled.SetLevel(logging.INFO, "")
		l.SetBackend(leveled)
		return l
	}
	return b.GetLogger(module)
}
