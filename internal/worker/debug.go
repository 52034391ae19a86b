package worker

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

var workerDebugEnabled = strings.EqualFold(os.Getenv("COMPANION_WORKER_DEBUG"), "1")

// debugLog is promoted to info level when COMPANION_WORKER_DEBUG=1.
func debugLog(msg string, args ...any) {
	level := slog.LevelDebug
	if workerDebugEnabled {
		level = slog.LevelInfo
	}
	slog.Default().Log(context.Background(), level, msg, args...)
}
