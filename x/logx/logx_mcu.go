//go:build baremetal

package logx

import "bluepill-core/x/conv"

// Level gates output on bare metal; Debug is off by default.
var Level = LevelInfo

const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

func Debug(msg string, kv ...any) { emit(LevelDebug, "DBG ", msg, kv) }
func Info(msg string, kv ...any)  { emit(LevelInfo, "INF ", msg, kv) }
func Warn(msg string, kv ...any)  { emit(LevelWarn, "WRN ", msg, kv) }
func Error(msg string, kv ...any) { emit(LevelError, "ERR ", msg, kv) }

func emit(lvl int, tag, msg string, kv []any) {
	if lvl < Level {
		return
	}
	line := tag + msg
	var buf [20]byte
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		line += " " + key + "="
		switch v := kv[i+1].(type) {
		case string:
			line += v
		case error:
			line += v.Error()
		case uint32:
			line += string(conv.Utoa(buf[:], uint64(v)))
		case int:
			if v < 0 {
				line += "-" + string(conv.Utoa(buf[:], uint64(-v)))
			} else {
				line += string(conv.Utoa(buf[:], uint64(v)))
			}
		case bool:
			if v {
				line += "true"
			} else {
				line += "false"
			}
		default:
			line += "?"
		}
	}
	println(line)
}
