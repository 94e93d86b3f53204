// Package commands wires the wastewatch CLI: flag parsing, config file and
// environment binding, and the subcommands that drive the engine.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wastewatch/wastewatch/pkg/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "wastewatch",
	Short: "Cloud waste detection engine",
	Long: `WasteWatch finds the resources you pay for but no longer use.

It scans every enabled region, grades each finding by confidence, prices
the waste per month, and reports what it found. Nothing is ever modified
or deleted.`,
	Version: version.Full(),
	// Run: nil (forces help output).
	Run:           nil,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. It is the only entry point main calls.
// Interrupts cancel the context so in-flight region scans stop cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.wastewatch.yaml)")
	rootCmd.PersistentFlags().String("region", "", "home region for the session (default: SDK resolution)")
	rootCmd.PersistentFlags().String("profile", "", "shared-config profile to authenticate with")
	rootCmd.PersistentFlags().String("endpoint-url", "", "override every service endpoint (LocalStack, proxies)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging on stderr")

	bindFlags(rootCmd.PersistentFlags())

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderHelp(cmd)
	})

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(pricingCmd)
	rootCmd.AddCommand(versionCmd)
}

// bindFlags registers a flag set with viper so values resolve in the usual
// precedence order: flag, then WASTEWATCH_* environment, then config file.
func bindFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = viper.BindPFlag(f.Name, f)
	})
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.SetConfigFile(filepath.Join(home, ".wastewatch.yaml"))
			viper.SetConfigType("yaml")
		}
	}
	viper.SetEnvPrefix("WASTEWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

// newLogger builds the CLI logger. Reports go to stdout, so logs always go
// to stderr; quiet mutes everything, which the TUI needs to keep its screen.
func newLogger(quiet bool) *slog.Logger {
	if quiet {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func renderHelp(cmd *cobra.Command) {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#874BFD")).
		MarginBottom(1)

	flagStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA"))

	fmt.Println(titleStyle.Render(fmt.Sprintf("WASTEWATCH %s", version.Full())))
	fmt.Println("Find the cloud resources you pay for but no longer use.")

	fmt.Println(titleStyle.Render("USAGE"))
	fmt.Printf("  %s\n\n", cmd.UseLine())

	if cmd.HasAvailableSubCommands() {
		fmt.Println(titleStyle.Render("COMMANDS"))
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() {
				fmt.Printf("  %-12s %s\n", c.Name(), c.Short)
			}
		}
		fmt.Println("")
	}

	fmt.Println(titleStyle.Render("EXAMPLES"))
	fmt.Println("  wastewatch scan --tui                       # browse findings interactively")
	fmt.Println("  wastewatch scan --regions us-east-1 \\")
	fmt.Println("      --format json -o waste.json             # CI mode")
	fmt.Println("  wastewatch rules --type volume              # effective thresholds")
	fmt.Println("")

	fmt.Println(titleStyle.Render("FLAGS"))
	renderFlagSet(cmd.Flags(), flagStyle)
	if cmd != rootCmd {
		renderFlagSet(rootCmd.PersistentFlags(), flagStyle)
	}
	fmt.Println("")
}

func renderFlagSet(fs *pflag.FlagSet, style lipgloss.Style) {
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		output := fmt.Sprintf("  --%-17s %s", f.Name, f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "[]" && f.DefValue != "0s" {
			output += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		fmt.Println(style.Render(output))
	})
}
