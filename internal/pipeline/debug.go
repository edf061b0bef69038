package pipeline

import "github.com/reefmodel/reefscale/internal/monitoring"

// opsf logs actionable problems: failed stages and skipped sessions.
func opsf(format string, args ...interface{}) {
	monitoring.For("pipeline").Warnf(format, args...)
}

// diagf logs stage progress.
func diagf(format string, args ...interface{}) {
	monitoring.For("pipeline").Debugf(format, args...)
}
