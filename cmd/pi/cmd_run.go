package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pi-cli/pi/internal/builtins"
	"github.com/pi-cli/pi/internal/events"
)

var runCmd = &cobra.Command{
	Use:   "run [extension-dir ...]",
	Short: "Load extensions and start an interactive session",
	Long: `Loads every extension directory given (or every subdirectory of the
configured extensions directory if none are given), dispatches the
startup and agent_start lifecycle events, then reads lines from stdin
as input events until EOF or "exit".`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	a := theApp
	a.resolver.UI = builtins.NewTerminalUISender(bufio.NewWriter(os.Stdout), bufio.NewReader(os.Stdin))

	roots, err := resolveExtensionRoots(a, args)
	if err != nil {
		return err
	}
	if len(roots) == 0 {
		return fmt.Errorf("pi run: no extensions found under %s", a.cfg.ExtensionsDir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	loaded, loadErrs := a.pipeline.LoadAll(ctx, roots)
	for _, le := range loadErrs {
		fmt.Fprintf(os.Stderr, "warning: %v\n", le)
	}
	if len(loaded) == 0 {
		return fmt.Errorf("pi run: every extension failed to load")
	}
	a.refreshExtensionCount()

	sessionID := uuid.NewString()
	if err := a.events.DispatchBestEffort(ctx, events.Startup, events.StartupPayload{Version: "0.1.0"}); err != nil {
		return err
	}
	if err := a.events.DispatchBestEffort(ctx, events.AgentStart, events.AgentStartPayload{SessionID: sessionID}); err != nil {
		return err
	}

	fmt.Printf("pi: %d extension(s) loaded, session %s. Type 'exit' to quit.\n", len(loaded), sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	turn := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "exit" {
			break
		}

		turn++
		a.events.DispatchBestEffort(ctx, events.TurnStart, events.TurnStartPayload{SessionID: sessionID, TurnIndex: turn})

		final, blocked, reason := a.events.DispatchInput(ctx, events.InputPayload{Content: line})
		if blocked {
			fmt.Printf("[blocked: %s]\n", reason)
			continue
		}
		fmt.Printf("> %s\n", final.Content)

		a.events.DispatchBestEffort(ctx, events.TurnEnd, events.TurnEndPayload{SessionID: sessionID, TurnIndex: turn})
	}

	a.events.DispatchBestEffort(context.Background(), events.AgentEnd, events.AgentEndPayload{SessionID: sessionID, Messages: turn})
	return nil
}

// resolveExtensionRoots returns explicit roots if given, otherwise every
// immediate subdirectory of the configured extensions directory.
func resolveExtensionRoots(a *app, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	entries, err := os.ReadDir(a.cfg.ExtensionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("pi run: list %s: %w", a.cfg.ExtensionsDir, err)
	}
	var roots []string
	for _, e := range entries {
		if e.IsDir() {
			roots = append(roots, filepath.Join(a.cfg.ExtensionsDir, e.Name()))
		}
	}
	return roots, nil
}
