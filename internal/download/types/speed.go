package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var speedLimitPattern = regexp.MustCompile(`^([0-9]+)([KkMmGg])$`)

// MaxSpeedLimit is the largest accepted cap, 1 TiB/s.
const MaxSpeedLimit int64 = 1 << 40

var unitShift = map[byte]uint{'K': 10, 'M': 20, 'G': 30}

// SpeedLimit is a maximum transfer rate. The zero value means unlimited.
type SpeedLimit struct {
	Amount int64
	Unit   byte // 'K', 'M' or 'G'
}

// ParseSpeedLimit accepts "<positive integer><K|M|G>" with a case-insensitive
// unit. An empty string is unlimited.
func ParseSpeedLimit(s string) (SpeedLimit, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SpeedLimit{}, nil
	}
	m := speedLimitPattern.FindStringSubmatch(s)
	if m == nil {
		return SpeedLimit{}, &ConfigurationError{
			Field:  "speed_limit",
			Reason: fmt.Sprintf("%q is not a rate like 500K, 2M or 10G", s),
		}
	}
	amount, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || amount <= 0 {
		return SpeedLimit{}, &ConfigurationError{
			Field:  "speed_limit",
			Reason: fmt.Sprintf("%q must be a positive amount", s),
		}
	}
	unit := strings.ToUpper(m[2])[0]
	if amount > MaxSpeedLimit>>unitShift[unit] {
		return SpeedLimit{}, &ConfigurationError{
			Field:  "speed_limit",
			Reason: fmt.Sprintf("%q exceeds the 1024G maximum", s),
		}
	}
	return SpeedLimit{Amount: amount, Unit: unit}, nil
}

// IsUnlimited reports whether no cap applies.
func (l SpeedLimit) IsUnlimited() bool {
	return l.Amount <= 0
}

// String renders the limit the way it was entered, normalised to an upper
// case unit. Unlimited renders as "".
func (l SpeedLimit) String() string {
	if l.IsUnlimited() {
		return ""
	}
	return fmt.Sprintf("%d%c", l.Amount, l.Unit)
}

// BytesPerSecond returns the cap in bytes/sec (0 when unlimited).
func (l SpeedLimit) BytesPerSecond() int64 {
	shift, ok := unitShift[l.Unit]
	if !ok || l.IsUnlimited() {
		return 0
	}
	return l.Amount << shift
}

// Aria2Value formats the limit for aria2c's --max-download-limit, which only
// understands K and M suffixes.
func (l SpeedLimit) Aria2Value() string {
	if l.IsUnlimited() {
		return ""
	}
	if l.Unit == 'G' {
		return fmt.Sprintf("%dM", l.BytesPerSecond()>>20)
	}
	return l.String()
}

// MarshalText renders the limit as "2M"; unlimited is "".
func (l SpeedLimit) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *SpeedLimit) UnmarshalText(text []byte) error {
	parsed, err := ParseSpeedLimit(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
