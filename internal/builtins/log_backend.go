package builtins

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/pi-cli/pi/internal/hostcall"
)

// LogBackend backs the "log" host call method, routing an extension's
// pi.log(level, payload) calls into the same process-wide slog logger
// every other component logs through, tagged with the calling
// extension's id.
type LogBackend struct {
	Logger *slog.Logger
}

// NewLogBackend returns a LogBackend writing through logger.
func NewLogBackend(logger *slog.Logger) *LogBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogBackend{Logger: logger}
}

type logCall struct {
	Level   string          `json:"level"`
	Payload json.RawMessage `json:"payload"`
}

// Execute implements hostcall.Backend.
func (b *LogBackend) Execute(ctx context.Context, req hostcall.Request) (json.RawMessage, error) {
	var call logCall
	if err := json.Unmarshal(req.Params, &call); err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "malformed log call: "+err.Error())
	}
	b.Logger.Log(ctx, parseLevel(call.Level), "extension log",
		"extension_id", req.ExtensionID, "payload", string(call.Payload))
	return json.Marshal(map[string]any{"logged": true})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
