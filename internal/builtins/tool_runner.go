// Package builtins provides concrete hostcall.Backend implementations
// for tool execution, HTTP transport, session persistence, and UI
// prompting. These are thin, intentionally minimal implementations that
// exist to make internal/hostcall.Dispatcher exercisable end to end.
package builtins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pi-cli/pi/internal/hostcall"
)

// ToolRunner backs the "tool" host call method: bash/read/write/edit/
// grep/find/ls, rooted at Root so extensions cannot escape the
// workspace via ../ traversal.
type ToolRunner struct {
	Root string
}

type toolInput struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type fileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Pattern string `json:"pattern"`
}

type bashArgs struct {
	Cmd string `json:"cmd"`
}

// Execute implements hostcall.Backend.
func (t *ToolRunner) Execute(ctx context.Context, req hostcall.Request) (json.RawMessage, error) {
	var call toolInput
	if err := json.Unmarshal(req.Params, &call); err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "malformed tool params: "+err.Error())
	}

	switch strings.ToLower(strings.TrimSpace(call.Name)) {
	case "bash":
		return t.runBash(ctx, call.Input)
	case "read":
		return t.readFile(call.Input)
	case "write":
		return t.writeFile(call.Input)
	case "edit":
		return t.editFile(call.Input)
	case "grep":
		return t.grep(call.Input)
	case "find":
		return t.find(call.Input)
	case "ls":
		return t.list(call.Input)
	default:
		return nil, hostcall.Unsupported(fmt.Sprintf("unknown tool %q", call.Name))
	}
}

func (t *ToolRunner) resolve(rel string) (string, error) {
	full := filepath.Join(t.Root, rel)
	clean := filepath.Clean(full)
	if !strings.HasPrefix(clean, filepath.Clean(t.Root)+string(os.PathSeparator)) && clean != filepath.Clean(t.Root) {
		return "", hostcall.NewBackendError(hostcall.ErrDenied, "path escapes workspace root")
	}
	return clean, nil
}

func (t *ToolRunner) runBash(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args bashArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "bash requires a cmd string")
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", args.Cmd)
	cmd.Dir = t.Root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	exitCode := 0
	if err != nil {
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

func (t *ToolRunner) readFile(raw json.RawMessage) (json.RawMessage, error) {
	var args fileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "read requires a path")
	}
	full, err := t.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	data, readErr := os.ReadFile(full)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, hostcall.NotFound(args.Path)
		}
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, readErr.Error())
	}
	return json.Marshal(map[string]any{"content": string(data)})
}

func (t *ToolRunner) writeFile(raw json.RawMessage) (json.RawMessage, error) {
	var args fileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "write requires path and content")
	}
	full, err := t.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	if mkErr := os.MkdirAll(filepath.Dir(full), 0o755); mkErr != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, mkErr.Error())
	}
	if writeErr := os.WriteFile(full, []byte(args.Content), 0o644); writeErr != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, writeErr.Error())
	}
	return json.Marshal(map[string]any{"bytes_written": len(args.Content)})
}

func (t *ToolRunner) editFile(raw json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Path    string `json:"path"`
		Find    string `json:"find"`
		Replace string `json:"replace"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "edit requires path, find, replace")
	}
	full, err := t.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	data, readErr := os.ReadFile(full)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, hostcall.NotFound(args.Path)
		}
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, readErr.Error())
	}
	if !strings.Contains(string(data), args.Find) {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "find text not present in file")
	}
	updated := strings.Replace(string(data), args.Find, args.Replace, 1)
	if writeErr := os.WriteFile(full, []byte(updated), 0o644); writeErr != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, writeErr.Error())
	}
	return json.Marshal(map[string]any{"replaced": true})
}

func (t *ToolRunner) grep(raw json.RawMessage) (json.RawMessage, error) {
	var args fileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "grep requires pattern and path")
	}
	full, err := t.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	data, readErr := os.ReadFile(full)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, hostcall.NotFound(args.Path)
		}
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, readErr.Error())
	}
	var matches []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.Contains(line, args.Pattern) {
			matches = append(matches, line)
		}
	}
	return json.Marshal(map[string]any{"matches": matches})
}

func (t *ToolRunner) find(raw json.RawMessage) (json.RawMessage, error) {
	var args fileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "find requires a pattern")
	}
	var hits []string
	walkErr := filepath.Walk(t.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && strings.Contains(info.Name(), args.Pattern) {
			rel, relErr := filepath.Rel(t.Root, path)
			if relErr == nil {
				hits = append(hits, rel)
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, walkErr.Error())
	}
	return json.Marshal(map[string]any{"matches": hits})
}

func (t *ToolRunner) list(raw json.RawMessage) (json.RawMessage, error) {
	var args fileArgs
	_ = json.Unmarshal(raw, &args)
	full, err := t.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	entries, readErr := os.ReadDir(full)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, hostcall.NotFound(args.Path)
		}
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, readErr.Error())
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return json.Marshal(map[string]any{"entries": names})
}
