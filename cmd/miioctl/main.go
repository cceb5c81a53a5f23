// miioctl is the operator CLI for miio device sessions.
//
// It runs the capability module in a local Python interpreter, without the
// daemon, and works on persisted session files:
//
//	miioctl types
//	miioctl create --ip 192.168.1.20 --token <hex> --type Yeelight -o lamp.json
//	miioctl methods -f lamp.json
//	miioctl call -f lamp.json set_rgb 255 0 0
//	miioctl shell -f lamp.json
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-miio/internal/bridge"
	"github.com/nerrad567/gray-logic-miio/internal/device"
	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(openInterpreter).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// library is a device.Library that owns a process.
type library interface {
	device.Library
	Close() error
}

// libraryOpener starts the device library for one command.
type libraryOpener func(cfg *config.Config, log *logging.Logger) (library, error)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	python     string
	sourcePath string
	verbose    bool
}

// cli carries state from the root command to its subcommands.
type cli struct {
	flags globalFlags
	open  libraryOpener
	cfg   *config.Config
	log   *logging.Logger
}

func newRootCmd(open libraryOpener) *cobra.Command {
	c := &cli{open: open}

	root := &cobra.Command{
		Use:           "miioctl",
		Short:         "Create, inspect and call miio device sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.configPath, "config", "", "configuration file (default: built-in defaults)")
	pf.StringVar(&c.flags.python, "python", "", "Python interpreter executable")
	pf.StringVar(&c.flags.sourcePath, "source-path", "", "load the capability module from this directory")
	pf.BoolVarP(&c.flags.verbose, "verbose", "v", false, "log bridge activity to stderr")

	root.AddCommand(
		newTypesCmd(c),
		newCreateCmd(c),
		newMethodsCmd(c),
		newCallCmd(c),
		newShowCmd(c),
		newShellCmd(c),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration and applies the global flags.
func (c *cli) setup(stderr io.Writer) error {
	var cfg *config.Config
	if c.flags.configPath != "" {
		loaded, err := config.Load(c.flags.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if c.flags.python != "" {
		cfg.Bridge.Python = c.flags.python
	}
	if c.flags.sourcePath != "" {
		cfg.Bridge.Mode = config.ModePath
		cfg.Bridge.SourcePath = c.flags.sourcePath
	}
	// One-shot commands: a crashed host is reported, not restarted.
	cfg.Bridge.RestartOnFailure = false

	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := config.LoggingConfig{Level: "warn", Format: "text"}
	if c.flags.verbose {
		logCfg.Level = "debug"
	}
	c.cfg = cfg
	c.log = logging.NewWithWriter(logCfg, version, stderr)
	return nil
}

// withLibrary runs fn against a freshly started library and stops it
// afterwards, whatever fn returns.
func (c *cli) withLibrary(fn func(lib device.Library) error) error {
	lib, err := c.open(c.cfg, c.log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := lib.Close(); closeErr != nil {
			c.log.Warn("stopping python host", "error", closeErr)
		}
	}()
	return fn(lib)
}

// openInterpreter starts a python host for the configured module source.
func openInterpreter(cfg *config.Config, log *logging.Logger) (library, error) {
	source, err := bridge.SourceFromConfig(cfg.Bridge)
	if err != nil {
		return nil, err
	}
	hostCfg := bridge.HostConfigFromConfig(cfg)
	hostCfg.HealthCheckInterval = 0
	return bridge.NewHost(hostCfg, source, log), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		// No configuration needed.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "miioctl %s (%s)\n", version, commit)
		},
	}
}
