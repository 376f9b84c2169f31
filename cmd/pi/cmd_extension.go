package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pi-cli/pi/internal/loadpipeline"
)

var extensionCmd = &cobra.Command{
	Use:   "extension",
	Short: "Manage installed extensions",
}

var extensionInstallCmd = &cobra.Command{
	Use:   "install <archive.piext>",
	Short: "Install an extension from a .piext archive, verifying its signature when trusted keys are given",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtensionInstall,
}

var extensionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List currently loaded extensions",
	RunE:  runExtensionList,
}

func init() {
	extensionInstallCmd.Flags().Bool("require-signature", false, "reject unsigned archives")
	extensionInstallCmd.Flags().StringArray("trusted-key", nil, "hex-encoded ed25519 public key allowed to sign archives (repeatable)")
	extensionCmd.AddCommand(extensionInstallCmd)
	extensionCmd.AddCommand(extensionListCmd)
	rootCmd.AddCommand(extensionCmd)
}

func runExtensionInstall(cmd *cobra.Command, args []string) error {
	a := theApp
	requireSig, _ := cmd.Flags().GetBool("require-signature")
	keyHexes, _ := cmd.Flags().GetStringArray("trusted-key")

	trusted := make([]ed25519.PublicKey, 0, len(keyHexes))
	for _, h := range keyHexes {
		raw, err := hex.DecodeString(h)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return fmt.Errorf("pi extension install: invalid --trusted-key %q", h)
		}
		trusted = append(trusted, ed25519.PublicKey(raw))
	}
	if requireSig && len(trusted) == 0 {
		return fmt.Errorf("pi extension install: --require-signature set but no --trusted-key configured")
	}

	ext, err := a.pipeline.Install(context.Background(), args[0], loadpipeline.InstallOptions{
		TrustedKeys: trusted,
		InstallDir:  a.cfg.ExtensionsDir,
	})
	if err != nil {
		return fmt.Errorf("pi extension install: %w", err)
	}
	a.refreshExtensionCount()
	fmt.Printf("installed %s (%s)\n", ext.ID, ext.Root)
	return nil
}

func runExtensionList(cmd *cobra.Command, args []string) error {
	a := theApp
	ids := a.pipeline.List()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROOT\tLOADED_AT")
	for _, id := range ids {
		ext, ok := a.pipeline.Get(id)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", ext.ID, ext.Root, ext.LoadedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
