package tzconv

import (
	"os"
	"strings"
	"time"

	"github.com/aelexs/time-engine/internal/domain"
)

// DetectionMethod records where a detected zone came from.
type DetectionMethod string

const (
	DetectedFromEnv    DetectionMethod = "env"
	DetectedFromSystem DetectionMethod = "system"
	DetectedFallback   DetectionMethod = "fallback"
)

const localtimePath = "/etc/localtime"

// DetectSystemTimezone makes a best-effort read of the host zone: the TZ
// variable, then the name of time.Local, then the /etc/localtime symlink.
// Anything unresolvable falls back to UTC.
func (c *Converter) DetectSystemTimezone() (string, DetectionMethod) {
	return c.detect(os.Getenv, time.Local, os.Readlink)
}

func (c *Converter) detect(
	getenv func(string) string,
	local *time.Location,
	readlink func(string) (string, error),
) (string, DetectionMethod) {
	if tz := strings.TrimPrefix(getenv("TZ"), ":"); tz != "" && c.IsValid(tz) {
		return tz, DetectedFromEnv
	}

	if local != nil {
		if name := local.String(); name != "Local" && c.IsValid(name) {
			return name, DetectedFromSystem
		}
	}

	if target, err := readlink(localtimePath); err == nil {
		if _, name, ok := strings.Cut(target, "zoneinfo/"); ok && c.IsValid(name) {
			return name, DetectedFromSystem
		}
	}

	return domain.DefaultTimezone, DetectedFallback
}
