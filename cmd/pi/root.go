package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pi-cli/pi/internal/config"
)

var cfgFile string

// theApp is the process-wide wiring built once in rootCmd's
// PersistentPreRunE, shared by every subcommand that needs a running
// extension host (run, extension).
var theApp *app

var rootCmd = &cobra.Command{
	Use:   "pi",
	Short: "Run and manage pi extensions",
	Long: `pi hosts untrusted JavaScript extensions inside a capability-gated
runtime: each extension gets its own JS engine instance, its own event
loop, and every host call it makes is checked against a five-layer
permission policy before it reaches the real filesystem, network, or
session store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if v := viper.GetString("profile"); v != "" {
			cfg.Policy.Profile = v
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		theApp = a
		return nil
	},
	SilenceUsage: true,
}

func init() {
	home, _ := os.UserHomeDir()
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", home+"/.pi/config.yaml", "path to config file")
	rootCmd.PersistentFlags().String("profile", "", "policy profile override (safe, standard, permissive)")
	viper.BindPFlag("profile", rootCmd.PersistentFlags().Lookup("profile"))
}

// Execute runs the pi CLI, exiting the process on error the way the
// teacher's own gk entry point does.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
