//go:build !baremetal

// Package logx is the module's logger: zerolog on the host, println on
// bare metal. Key/value pairs follow the message.
package logx

import (
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
	With().Timestamp().Logger().
	Level(zerolog.InfoLevel)

// SetLogger replaces the process logger.
func SetLogger(l zerolog.Logger) { logger = l }

// Logger returns the process logger.
func Logger() zerolog.Logger { return logger }

func Debug(msg string, kv ...any) { emit(logger.Debug(), msg, kv) }
func Info(msg string, kv ...any)  { emit(logger.Info(), msg, kv) }
func Warn(msg string, kv ...any)  { emit(logger.Warn(), msg, kv) }
func Error(msg string, kv ...any) { emit(logger.Error(), msg, kv) }

func emit(e *zerolog.Event, msg string, kv []any) {
	if e == nil {
		return
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = "?"
		}
		switch v := kv[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case string:
			e = e.Str(key, v)
		case uint32:
			e = e.Uint32(key, v)
		case int:
			e = e.Int(key, v)
		case bool:
			e = e.Bool(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
