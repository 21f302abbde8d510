// Package main is the entry point for the SignSynth CLI.
// SignSynth turns text into sign language animation: words are expanded into
// pose keys and played on a two-handed rig, one sign at a time.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/normanking/signsynth/internal/config"
	"github.com/normanking/signsynth/internal/logging"
)

var version = "0.1.0"

// app carries what every command shares once flags are parsed.
type app struct {
	v       *viper.Viper
	cfgPath string
	verbose bool

	cfg *config.Config
	log *logging.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "signsynth",
		Short: "SignSynth - text to sign language animation",
		Long: `SignSynth plays sign language on a two-handed rig from a pose library.

Each word with its own pose is signed whole; other words are fingerspelled.
Repeated letters slide the right hand instead of signing twice.

Expand text:          signsynth expand "hello world"
Play headless:        signsynth play "hello"
Run the server:       signsynth serve --speech
Past sessions:        signsynth history -n 5
Check a pose file:    signsynth validate sign_poses.json`,
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
		PersistentPostRun: a.close,
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgPath, "config", "", "config file path (default ./signsynth.yaml or ~/.signsynth/signsynth.yaml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	flags.String("poses", "", "pose document (json or yaml)")
	flags.String("skeleton", "", "glTF skeleton to resolve joint handles from")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("history", false, "record signing sessions")
	a.v.BindPFlag("poses.path", flags.Lookup("poses"))
	a.v.BindPFlag("rig.skeleton_path", flags.Lookup("skeleton"))
	a.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	a.v.BindPFlag("history.enabled", flags.Lookup("history"))

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "SignSynth v%s\n", version)
		},
	})

	rootCmd.AddCommand(expandCmd(a))
	rootCmd.AddCommand(timelineCmd(a))
	rootCmd.AddCommand(validateCmd(a))
	rootCmd.AddCommand(playCmd(a))
	rootCmd.AddCommand(serveCmd(a))
	rootCmd.AddCommand(historyCmd(a))

	return rootCmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG AND LOGGING INITIALIZATION
// ═══════════════════════════════════════════════════════════════════════════════

func (a *app) init(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWith(a.v, a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := logging.ParseLevel(cfg.Logging.Level)
	if a.verbose {
		level = logging.LevelDebug
	}
	a.log, err = logging.New(&logging.Config{
		LogDir:  cfg.Logging.Dir,
		Level:   level,
		Console: cfg.Logging.Console,
		Output:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	if a.verbose {
		a.log.Debug("cli", "Verbose logging enabled", map[string]interface{}{
			"config": a.v.ConfigFileUsed(),
			"poses":  cfg.Poses.Path,
		})
	}
	return nil
}

func (a *app) close(cmd *cobra.Command, args []string) {
	if a.log != nil {
		a.log.Close()
	}
}
