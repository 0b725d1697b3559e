// Package logger builds the zerolog loggers the daemon and the packages
// under it write through.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

const logFilePermission = 0664

// Build accumulates logger options. The zero value logs to stdout at
// info level.
type Build struct {
	writer io.Writer
	path   string
	level  string
}

func New() *Build {
	return &Build{}
}

// ToPath appends log output to the file at path.
func (b *Build) ToPath(path string) *Build {
	b.path = path
	return b
}

// ToWriter sends log output to w. Tests use this with a buffer.
func (b *Build) ToWriter(w io.Writer) *Build {
	b.writer = w
	return b
}

// WithLevel sets the minimum level: trace, debug, info, warn or error.
func (b *Build) WithLevel(level string) *Build {
	b.level = level
	return b
}

// Make finalizes the build into a logger. A file path takes precedence
// over an explicit writer.
func (b *Build) Make() (zerolog.Logger, error) {
	writer := b.writer
	if writer == nil {
		writer = os.Stdout
	}
	if b.path != "" {
		f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFilePermission)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("logger: open %s: %w", b.path, err)
		}
		writer = zerolog.SyncWriter(f)
	}
	level := zerolog.InfoLevel
	if b.level != "" {
		parsed, err := zerolog.ParseLevel(b.level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("logger: level %q: %w", b.level, err)
		}
		level = parsed
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger(), nil
}

// Component returns a child logger tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
