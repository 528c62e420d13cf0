package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. JSON output keeps privileged
// operation logs machine-parseable for the compliance pipeline.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
