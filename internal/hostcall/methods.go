package hostcall

import (
	"encoding/json"
	"strings"

	"github.com/pi-cli/pi/internal/capability"
)

// toolParams is the params shape for method "tool".
type toolParams struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// fsParams is the params shape for method "fs".
type fsParams struct {
	Op string `json:"op"`
}

var execTools = map[string]struct{}{"bash": {}}
var writeTools = map[string]struct{}{"write": {}, "edit": {}}
var readTools = map[string]struct{}{"read": {}, "grep": {}, "find": {}, "ls": {}}

var fsReadOps = map[string]struct{}{"read": {}, "list": {}, "readdir": {}, "stat": {}}
var fsWriteOps = map[string]struct{}{"write": {}, "mkdir": {}, "delete": {}, "remove": {}, "rm": {}}

// RequiredCapability maps (method, params) to the capability that must be
// authorized, per the table in the design. ok is false when the
// method/params combination is not recognized by the table, in which case
// the caller should evaluate against the request's declared capability.
func RequiredCapability(method string, params json.RawMessage) (cap capability.Capability, ok bool) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "tool":
		var p toolParams
		if err := json.Unmarshal(params, &p); err != nil {
			return "", false
		}
		name := strings.ToLower(strings.TrimSpace(p.Name))
		switch {
		case isIn(execTools, name):
			return capability.Exec, true
		case isIn(writeTools, name):
			return capability.Write, true
		case isIn(readTools, name):
			return capability.Read, true
		default:
			return capability.Tool, true
		}
	case "fs":
		var p fsParams
		if err := json.Unmarshal(params, &p); err != nil {
			return "", false
		}
		op := strings.ToLower(strings.TrimSpace(p.Op))
		switch {
		case isIn(fsReadOps, op):
			return capability.Read, true
		case isIn(fsWriteOps, op):
			return capability.Write, true
		default:
			return "", false
		}
	case "exec":
		return capability.Exec, true
	case "env":
		return capability.Env, true
	case "http":
		return capability.HTTP, true
	case "session":
		return capability.Session, true
	case "ui":
		return capability.UI, true
	case "events":
		return capability.Events, true
	case "log":
		return capability.Log, true
	default:
		return "", false
	}
}

func isIn(m map[string]struct{}, key string) bool {
	_, ok := m[key]
	return ok
}
