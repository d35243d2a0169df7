// Package cli implements the ghharvest command-line interface.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/Sternrassler/gh-harvester/pkg/config"
	"github.com/Sternrassler/gh-harvester/pkg/logging"
	"github.com/spf13/cobra"
)

var version = "1.0"

// CLI holds the streams and global flags shared by all commands.
type CLI struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	configPath string
	logLevel   string
	pretty     bool

	// cfg is loaded once before any command runs
	cfg config.Config
}

// New creates a CLI reading prompts from in and printing results to out.
// Logs go to errOut.
func New(in io.Reader, out, errOut io.Writer) *CLI {
	return &CLI{in: in, out: out, errOut: errOut}
}

// Execute runs ghharvest with the process streams.
func Execute(ctx context.Context) error {
	return New(os.Stdin, os.Stdout, os.Stderr).RootCommand().ExecuteContext(ctx)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ghharvest",
		Short:         "Harvest GitHub users and repositories by location",
		Long:          `ghharvest searches GitHub users by location and follower count, lists their repositories while respecting the API rate limits, and writes both tables to CSV (and optionally SQLite) for analysis.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setupLogging(cmd)
		},
	}

	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "TOML config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&c.pretty, "pretty", false, "human-readable log output")

	root.AddCommand(c.scrapeCommand())
	root.AddCommand(c.analyzeCommand())

	return root
}

// setupLogging loads the configuration and configures the global logger
// before any command builds its loggers.
func (c *CLI) setupLogging(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	name := cfg.LogLevel
	if cmd.Flags().Changed("log-level") {
		name = c.logLevel
	}
	level, err := logging.ParseLevel(name)
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{
		Level:  level,
		Pretty: cfg.LogPretty || c.pretty,
		Output: c.errOut,
	})
	return nil
}
