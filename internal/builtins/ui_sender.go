package builtins

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pi-cli/pi/internal/hostcall"
	"github.com/pi-cli/pi/internal/policy"
)

// HeadlessUISender always resolves to once-deny, the safe default for
// headless/non-interactive use described in the design.
type HeadlessUISender struct{}

// RequestUI implements policy.UISender.
func (HeadlessUISender) RequestUI(ctx context.Context, req policy.PromptRequest) (policy.Choice, error) {
	return policy.ChoiceOnceDeny, nil
}

// TerminalUISender renders a capability prompt to the terminal and reads
// the user's choice, for `cmd/pi run`'s interactive session.
type TerminalUISender struct {
	Out *bufio.Writer
	In  *bufio.Reader
}

// NewTerminalUISender builds a TerminalUISender over the given reader and
// writer (typically os.Stdin/os.Stdout).
func NewTerminalUISender(out *bufio.Writer, in *bufio.Reader) *TerminalUISender {
	return &TerminalUISender{Out: out, In: in}
}

// RequestUI implements policy.UISender.
func (t *TerminalUISender) RequestUI(ctx context.Context, req policy.PromptRequest) (policy.Choice, error) {
	fmt.Fprintf(t.Out, "\n%s\n%s\nExtension %q requests capability %q.\n", req.Title, req.Message, req.ExtensionID, req.Capability)
	fmt.Fprint(t.Out, "[a]llow once, [A]lways allow, [d]eny once, [D]eny always: ")
	t.Out.Flush()

	line, err := t.In.ReadString('\n')
	if err != nil {
		return policy.ChoiceOnceDeny, err
	}
	switch strings.TrimSpace(line) {
	case "a":
		return policy.ChoiceOnceAllow, nil
	case "A":
		return policy.ChoiceAlwaysAllow, nil
	case "D":
		return policy.ChoiceAlwaysDeny, nil
	default:
		return policy.ChoiceOnceDeny, nil
	}
}

// UIBackend backs the "ui" host call method: an extension's own
// pi.ui(op, args?) prompts and notifications, distinct from the
// capability-grant prompts policy.UISender renders (those are triggered
// by the PolicyEngine, not by extension code). It reads Resolver.UI at
// call time rather than capturing a sender at construction, so a
// subcommand that swaps in an interactive sender after newApp (`pi run`
// installs a TerminalUISender once stdin is available) is honored.
type UIBackend struct {
	Resolver *policy.Resolver
	Out      io.Writer
}

// NewUIBackend returns a UIBackend confirming through resolver's current
// UI sender and writing notify messages to out.
func NewUIBackend(resolver *policy.Resolver, out io.Writer) *UIBackend {
	return &UIBackend{Resolver: resolver, Out: out}
}

type uiOp struct {
	Op   string `json:"op"`
	Args struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	} `json:"args"`
}

// Execute implements hostcall.Backend.
func (b *UIBackend) Execute(ctx context.Context, req hostcall.Request) (json.RawMessage, error) {
	var op uiOp
	if err := json.Unmarshal(req.Params, &op); err != nil {
		return nil, hostcall.NewBackendError(hostcall.ErrInvalidRequest, "malformed ui op: "+err.Error())
	}

	switch strings.ToLower(strings.TrimSpace(op.Op)) {
	case "notify":
		fmt.Fprintf(b.Out, "[%s] %s\n", req.ExtensionID, op.Args.Message)
		return json.Marshal(map[string]any{"notified": true})
	case "confirm":
		choice, err := b.Resolver.UI.RequestUI(ctx, policy.PromptRequest{
			Title:       op.Args.Title,
			Message:     op.Args.Message,
			ExtensionID: req.ExtensionID,
			Capability:  "ui.confirm",
		})
		if err != nil {
			return nil, hostcall.NewBackendError(hostcall.ErrInternal, err.Error())
		}
		return json.Marshal(map[string]any{"confirmed": choice.Allowed()})
	default:
		return nil, hostcall.Unsupported(fmt.Sprintf("unknown ui op %q", op.Op))
	}
}
