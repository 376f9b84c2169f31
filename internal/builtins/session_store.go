package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pi-cli/pi/internal/hostcall"
)

// SessionStore backs the "session" host call method with an append-only
// NDJSON file per session id. append writes with O_APPEND followed by an
// fsync; fork uses the same temp-file/fsync/rename atomic-write dance
// internal/promptcache.Store uses for its document, itself adapted from
// internal/plugin/manager.go's savePolicy.
type SessionStore struct {
	mu   sync.Mutex
	Root string
}

// NewSessionStore returns a SessionStore rooted at dir.
func NewSessionStore(dir string) *SessionStore {
	return &SessionStore{Root: dir}
}

type sessionOp struct {
	Op        string          `json:"op"`
	SessionID string          `json:"session_id"`
	Entry     json.RawMessage `json:"entry,omitempty"`
	ForkFrom  string          `json:"fork_from,omitempty"`
}

// Execute implements hostcall.Backend.
func (s *SessionStore) Execute(ctx context.Context, req hostcall.Request) (json.RawMessage, error) {
	var op sessionOp
	if err := json.Unmarshal(req.Params, &op); err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "malformed session op: "+err.Error())
	}
	// pi.session(op, args) nests the op's fields under "args"; top-level
	// fields are accepted as well.
	var nested struct {
		Args *sessionOp `json:"args"`
	}
	if err := json.Unmarshal(req.Params, &nested); err == nil && nested.Args != nil {
		nested.Args.Op = op.Op
		op = *nested.Args
	}
	if strings.TrimSpace(op.SessionID) == "" {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "session op requires session_id")
	}

	switch strings.ToLower(strings.TrimSpace(op.Op)) {
	case "append":
		return s.append(op)
	case "list":
		return s.list(op)
	case "fork":
		return s.fork(op)
	default:
		return nil, hostcall.Unsupported(fmt.Sprintf("unknown session op %q", op.Op))
	}
}

func (s *SessionStore) path(sessionID string) string {
	return filepath.Join(s.Root, sessionID+".ndjson")
}

func (s *SessionStore) append(op sessionOp) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.Root, 0o700); err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, err.Error())
	}
	f, err := os.OpenFile(s.path(op.SessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, err.Error())
	}
	defer f.Close()

	line := append(append([]byte{}, op.Entry...), '\n')
	if _, err := f.Write(line); err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, err.Error())
	}
	if err := f.Sync(); err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, err.Error())
	}
	return json.Marshal(map[string]any{"appended": true, "at": time.Now().UTC()})
}

func (s *SessionStore) list(op sessionOp) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(op.SessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return json.Marshal(map[string]any{"entries": []json.RawMessage{}})
		}
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, err.Error())
	}
	var entries []json.RawMessage
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, json.RawMessage(line))
	}
	return json.Marshal(map[string]any{"entries": entries})
}

// fork copies an existing session's NDJSON file to a new session id, via
// the same temp-file-then-rename pattern used for every other atomic
// write in this codebase rather than a plain Copy, so a crash mid-fork
// never leaves a half-written destination session file.
func (s *SessionStore) fork(op sessionOp) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(op.ForkFrom) == "" {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "fork requires fork_from")
	}
	data, err := os.ReadFile(s.path(op.ForkFrom))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, hostcall.NotFound(op.ForkFrom)
		}
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, err.Error())
	}

	dest := s.path(op.SessionID)
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".session-fork-*")
	if err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, err.Error())
	}
	tmpPath := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, err.Error())
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, err.Error())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, err.Error())
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return nil, hostcall.NewBackendError(hostcall.ErrInternal, err.Error())
	}
	return json.Marshal(map[string]any{"forked": true, "session_id": op.SessionID})
}
