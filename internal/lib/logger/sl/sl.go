// Package sl holds small slog attribute helpers.
package sl

import "log/slog"

// Err wraps an error as an "error" attribute.  A nil error yields an empty
// string value.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
