// Package level defines the ordered severity scale used by configuration
// documents and its mapping onto slog levels.
package level

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level is an event severity. Higher values are more severe.
type Level int

const (
	Verbose Level = iota
	Debug
	Information
	Warning
	Error
	Fatal
)

var names = [...]string{"Verbose", "Debug", "Information", "Warning", "Error", "Fatal"}

var shortNames = [...]string{"VRB", "DBG", "INF", "WRN", "ERR", "FTL"}

// slogLevels maps each Level onto the slog scale. Verbose and Fatal sit
// one step below Debug and above Error respectively.
var slogLevels = [...]slog.Level{
	slog.LevelDebug - 4,
	slog.LevelDebug,
	slog.LevelInfo,
	slog.LevelWarn,
	slog.LevelError,
	slog.LevelError + 4,
}

// Names returns the member names in ascending severity.
func Names() []string {
	return append([]string(nil), names[:]...)
}

func (l Level) String() string {
	if l < Verbose || l > Fatal {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return names[l]
}

// Short returns the three-letter abbreviation of l.
func (l Level) Short() string {
	if l < Verbose || l > Fatal {
		return "???"
	}
	return shortNames[l]
}

// Slog converts l to the corresponding slog.Level.
func (l Level) Slog() slog.Level {
	if l < Verbose {
		return slogLevels[Verbose]
	}
	if l > Fatal {
		return slogLevels[Fatal]
	}
	return slogLevels[l]
}

// FromSlog returns the highest Level whose slog value does not exceed sl.
func FromSlog(sl slog.Level) Level {
	for l := Fatal; l > Verbose; l-- {
		if sl >= slogLevels[l] {
			return l
		}
	}
	return Verbose
}

// Parse returns the Level named by s, ignoring case and surrounding space.
func Parse(s string) (Level, error) {
	s = strings.TrimSpace(s)
	for i, n := range names {
		if strings.EqualFold(n, s) {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("%q is not a valid level; expected one of %s", s, strings.Join(names[:], ", "))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}
