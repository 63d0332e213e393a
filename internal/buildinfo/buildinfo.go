// Package buildinfo carries the version stamped at link time via -ldflags.
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// String renders a one-line identifier for startup logs, for example
// "1.4.0 (abc1234, built 2026-08-01T10:00:00Z)".
func String() string {
	s := Version
	if Commit != "" {
		s += fmt.Sprintf(" (%s", Commit)
		if BuiltAt != "" {
			s += ", built " + BuiltAt
		}
		s += ")"
	}
	return s
}

// Info returns the build fields for the health endpoint.
func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
}
