package builtins

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/pi-cli/pi/internal/hostcall"
)

// ExecRunner backs the "exec" host call method, the direct-execution
// sibling of ToolRunner's "bash" tool: it runs cmd with an explicit argv
// rather than through a shell, rooted at Root so the working directory
// matches every other builtins backend.
type ExecRunner struct {
	Root string
}

type execCall struct {
	Cmd  string   `json:"cmd"`
	Args []string `json:"args"`
}

// Execute implements hostcall.Backend.
func (e *ExecRunner) Execute(ctx context.Context, req hostcall.Request) (json.RawMessage, error) {
	var call execCall
	if err := json.Unmarshal(req.Params, &call); err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "malformed exec params: "+err.Error())
	}
	if strings.TrimSpace(call.Cmd) == "" {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "exec requires a cmd")
	}

	cmd := exec.CommandContext(ctx, call.Cmd, call.Args...)
	cmd.Dir = e.Root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, hostcall.NewBackendError(hostcall.ErrInternal, err.Error())
		}
	}
	return json.Marshal(map[string]any{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	})
}
