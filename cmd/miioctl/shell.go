package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-miio/internal/device"
)

func newShellCmd(c *cli) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Call device methods interactively",
		Long: `Shell keeps one Python host running and reads commands from the
terminal. Any word that is not a shell command is called as a device method;
method names complete with TAB.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.loadSession(file)
			if err != nil {
				return err
			}
			return c.withLibrary(func(lib device.Library) error {
				return runShell(cmd.Context(), &shell{session: s, lib: lib, name: file})
			})
		},
	}
	addFileFlag(cmd, &file)
	return cmd
}

// shell executes REPL lines against one session.
type shell struct {
	session *device.Session
	lib     device.Library
	name    string
}

func runShell(ctx context.Context, sh *shell) error {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("methods"),
		readline.PcItem("show"),
		readline.PcItem("quit"),
	}
	for _, name := range sh.session.MethodNames() {
		items = append(items, readline.PcItem(name))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          sh.session.DeviceType() + "> ",
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	sh.printHelp(rl.Stdout())
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			// EOF
			return nil
		}
		if sh.exec(ctx, line, rl.Stdout()) {
			return nil
		}
	}
}

// exec runs one input line and reports whether the shell should exit.
// Call failures are printed, not returned: the session stays usable.
func (sh *shell) exec(ctx context.Context, line string, w io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		sh.printHelp(w)
	case "methods":
		printMethods(w, sh.session)
	case "show":
		fmt.Fprintf(w, "%s at %s, %d methods\n", sh.session.DeviceType(), sh.session.IP(), len(sh.session.Methods()))
	default:
		method, args := fields[0], fields[1:]
		if method == "call" && len(args) > 0 {
			method, args = args[0], args[1:]
		}
		result, err := sh.session.Invoke(ctx, sh.lib, method, args)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			return false
		}
		fmt.Fprintln(w, result)
	}
	return false
}

func (sh *shell) printHelp(w io.Writer) {
	fmt.Fprintf(w, `miio shell for %s (%s)
  <method> [args...]  call a device method
  methods             list recorded methods
  show                show the session
  help                this text
  quit                leave the shell
`, sh.name, sh.session.DeviceType())
}
