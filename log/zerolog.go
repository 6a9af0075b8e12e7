// Package log adapts zerolog to the identity.Logger interface.
package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/stagedoor/identity"
)

// zerologAdapter wraps a zerolog.Logger to implement identity.Logger.
type zerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates an identity.Logger backed by zerolog writing to
// stderr. With pretty enabled, output goes through the console writer.
func NewZerologAdapter(level zerolog.Level, pretty bool) identity.Logger {
	var zlog zerolog.Logger
	if pretty {
		zlog = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(level).
			With().
			Timestamp().
			Logger()
	} else {
		zlog = zerolog.New(os.Stderr).
			Level(level).
			With().
			Timestamp().
			Logger()
	}
	return &zerologAdapter{logger: zlog}
}

// WrapZerolog adapts an existing zerolog.Logger.
func WrapZerolog(zlog zerolog.Logger) identity.Logger {
	return &zerologAdapter{logger: zlog}
}

func (z *zerologAdapter) Debug(format string, args ...any) {
	z.logger.Debug().Msgf(format, args...)
}

func (z *zerologAdapter) Info(format string, args ...any) {
	z.logger.Info().Msgf(format, args...)
}

func (z *zerologAdapter) Warn(format string, args ...any) {
	z.logger.Warn().Msgf(format, args...)
}

func (z *zerologAdapter) Error(format string, args ...any) {
	z.logger.Error().Msgf(format, args...)
}
