package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/crimson-sun/netsentry/internal/model"
	"github.com/crimson-sun/netsentry/internal/output"
)

const defaultBackups = 5

// Config holds settings for the alert file.
type Config struct {
	Path       string `yaml:"path"`
	MaxSize    int64  `yaml:"max_size"`    // bytes; 0 disables rotation
	MaxBackups int    `yaml:"max_backups"` // rotated files kept as path.1 .. path.N
}

// Output appends alerts to a file as NDJSON, one line per alert, rotating
// by size.
type Output struct {
	mu        sync.Mutex
	cfg       Config
	verbosity output.Verbosity
	f         *os.File
	w         *bufio.Writer
	written   int64
}

// New opens (or creates) cfg.Path for appending.
func New(cfg Config, verbosity output.Verbosity) (*Output, error) {
	if cfg.Path == "" {
		return nil, errors.New("file output: path is required")
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = defaultBackups
	}
	o := &Output{cfg: cfg, verbosity: verbosity}
	if err := o.open(); err != nil {
		return nil, err
	}
	return o, nil
}

// Write appends the alert and flushes, so the file can be tailed.
func (o *Output) Write(_ context.Context, alert model.Alert) error {
	data, err := json.Marshal(output.FormatAlert(alert, o.verbosity))
	if err != nil {
		return fmt.Errorf("file output: marshal: %w", err)
	}
	data = append(data, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cfg.MaxSize > 0 && o.written > 0 && o.written+int64(len(data)) > o.cfg.MaxSize {
		if err := o.rotate(); err != nil {
			return fmt.Errorf("file output: rotate: %w", err)
		}
	}
	n, err := o.w.Write(data)
	o.written += int64(n)
	if err != nil {
		return fmt.Errorf("file output: write: %w", err)
	}
	if err := o.w.Flush(); err != nil {
		return fmt.Errorf("file output: flush: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.f == nil {
		return nil
	}
	err := o.w.Flush()
	if cerr := o.f.Close(); err == nil {
		err = cerr
	}
	o.f = nil
	if err != nil {
		return fmt.Errorf("file output: close: %w", err)
	}
	return nil
}

func (o *Output) open() error {
	f, err := os.OpenFile(o.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("file output: open %s: %w", o.cfg.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("file output: stat %s: %w", o.cfg.Path, err)
	}
	o.f = f
	o.w = bufio.NewWriter(f)
	o.written = info.Size()
	return nil
}

// rotate shifts path.N-1 -> path.N ... path -> path.1 and reopens path.
// The oldest backup beyond MaxBackups is overwritten.
func (o *Output) rotate() error {
	if err := o.w.Flush(); err != nil {
		return err
	}
	if err := o.f.Close(); err != nil {
		return err
	}
	for i := o.cfg.MaxBackups - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", o.cfg.Path, i)
		to := fmt.Sprintf("%s.%d", o.cfg.Path, i+1)
		if err := os.Rename(from, to); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := os.Rename(o.cfg.Path, o.cfg.Path+".1"); err != nil {
		return err
	}
	return o.open()
}
