package debug

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (link state, completion)
	LevelLive    = 2 // Live info (loop lifecycle, commands sent)
	LevelVerbose = 3 // Verbose (configuration, wiring, per-second summaries)
	LevelTrace   = 4 // Trace (every frame, raw serial traffic)
)

var (
	level  int
	out    io.Writer = os.Stdout
	logger *zerolog.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (link opened/closed, level complete)
// 2 = live info (loop start/stop, commands)
// 3 = verbose (config values, wiring steps)
// 4 = trace (every frame, raw serial lines)
func Init(debugLevel int) {
	level = debugLevel
	build()
}

// SetOutput redirects log output (e.g. to stdout and the web status stream).
func SetOutput(w io.Writer) {
	out = w
	build()
}

func build() {
	if level <= LevelOff {
		logger = nil
		return
	}
	cw := zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000000", NoColor: out != os.Stdout}
	l := zerolog.New(cw).Level(zerolog.TraceLevel).With().Timestamp().Str("app", "potwalk").Logger()
	logger = &l
}

// Level returns the current debug level.
func Level() int {
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Info().Msgf(format, args...)
	}
}

// Summary prints an important summary banner (level 1).
func Summary(title string) {
	if level >= LevelInfo && logger != nil {
		logger.Info().Msg("═══════════════════════════════════════")
		logger.Info().Msgf("  %s", title)
		logger.Info().Msg("═══════════════════════════════════════")
	}
}

// Link prints a serial link state change (level 1).
func Link(port string, state string) {
	if level >= LevelInfo && logger != nil {
		logger.Info().Str("port", port).Str("state", state).Msg("serial link")
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive && logger != nil {
		logger.Info().Str("stage", "live").Msgf(format, args...)
	}
}

// Command prints a command byte sent to the device (level 2).
func Command(b byte) {
	if level >= LevelLive && logger != nil {
		logger.Info().Str("stage", "live").Str("command", string(rune(b))).Msg("command sent")
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Debug().Msgf(format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Debug().Msgf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose && logger != nil {
		logger.Debug().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Debug().Msgf("  %s", name)
		logger.Debug().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if level >= LevelVerbose && logger != nil {
		logger.Debug().Int("step", num).Msg(description)
	}
}

// Value prints a named value (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Info().Interface("value", value).Msg(name)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message.
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Trace().Msgf(format, args...)
	}
}

// Frame prints a per-frame summary (level 4).
func Frame(n uint64, dt time.Duration, yaw, pitch float64, x, y, z float64) {
	if level >= LevelTrace && logger != nil {
		logger.Trace().
			Uint64("frame", n).
			Dur("dt", dt).
			Float64("yaw", yaw).
			Float64("pitch", pitch).
			Floats64("pos", []float64{x, y, z}).
			Msg("frame")
	}
}

// Serial prints a raw serial event (level 4).
func Serial(operation string, value interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Trace().Str("op", operation).Interface("value", value).Msg("serial")
	}
}

// Reading prints a decoded potentiometer reading (level 4).
func Reading(raw int, normalized float64) {
	if level >= LevelTrace && logger != nil {
		logger.Trace().Int("raw", raw).Float64("normalized", normalized).Msg("pot reading")
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Trace().Str("op", operation).Int("pin", pin).Interface("value", value).Msg("gpio")
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if level >= LevelInfo && logger != nil {
		logger.Error().Err(err).Msg("")
	}
}
