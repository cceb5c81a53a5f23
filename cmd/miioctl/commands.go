package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-miio/internal/device"
)

func newTypesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the device types the library supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withLibrary(func(lib device.Library) error {
				types, err := device.ListTypes(cmd.Context(), lib)
				if err != nil {
					return err
				}
				for _, t := range types {
					fmt.Fprintln(cmd.OutOrStdout(), t)
				}
				return nil
			})
		},
	}
}

func newCreateCmd(c *cli) *cobra.Command {
	var ip, token, deviceType, output string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a device session and save it to a file",
		Long: `Create instantiates the device through the library and saves the
session. Without -o the file is written to the storage directory as
<type>-<ip>.json, for example yeelight-192-168-1-20.json.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withLibrary(func(lib device.Library) error {
				s, err := device.Create(cmd.Context(), lib, ip, token, deviceType)
				if err != nil {
					return err
				}

				path := output
				if path == "" {
					name := device.GenerateSlug(deviceType+"-"+strings.ReplaceAll(ip, ".", "-")) + ".json"
					if err := device.SaveToDir(s, c.cfg.Storage.Dir, name); err != nil {
						return err
					}
					path = filepath.Join(c.cfg.Storage.Dir, name)
				} else if err := device.WriteFile(s, path); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "created %s session with %d methods: %s\n",
					s.DeviceType(), len(s.Methods()), path)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&ip, "ip", "", "device IP address")
	f.StringVar(&token, "token", "", "device token")
	f.StringVar(&deviceType, "type", "", "device type, see 'miioctl types'")
	f.StringVarP(&output, "output", "o", "", "session file to write")
	for _, name := range []string{"ip", "token", "type"} {
		_ = cmd.MarkFlagRequired(name) //nolint:errcheck // flag defined above
	}
	return cmd
}

func newMethodsCmd(c *cli) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "methods",
		Short: "List the methods recorded in a session file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.loadSession(file)
			if err != nil {
				return err
			}
			printMethods(cmd.OutOrStdout(), s)
			return nil
		},
	}
	addFileFlag(cmd, &file)
	return cmd
}

func newCallCmd(c *cli) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "call METHOD [ARGS...]",
		Short: "Call a device method and print the result",
		Long: `Call invokes METHOD on the device with ARGS passed through as strings.
Methods not listed by 'miioctl methods' are still sent to the library.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.loadSession(file)
			if err != nil {
				return err
			}
			if !s.HasMethod(args[0]) {
				c.log.Debug("method not in session method table", "method", args[0])
			}
			return c.withLibrary(func(lib device.Library) error {
				result, err := s.Invoke(cmd.Context(), lib, args[0], args[1:])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
	addFileFlag(cmd, &file)
	return cmd
}

func newShowCmd(c *cli) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a session file without its token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.loadSession(file)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "type:    %s\n", s.DeviceType())
			fmt.Fprintf(out, "ip:      %s\n", s.IP())
			fmt.Fprintf(out, "token:   %s\n", maskToken(s.Token()))
			fmt.Fprintf(out, "handle:  %d bytes\n", len(s.Handle()))
			fmt.Fprintf(out, "methods: %d\n", len(s.Methods()))
			return nil
		},
	}
	addFileFlag(cmd, &file)
	return cmd
}

func addFileFlag(cmd *cobra.Command, file *string) {
	cmd.Flags().StringVarP(file, "file", "f", "", "session file")
	_ = cmd.MarkFlagRequired("file") //nolint:errcheck // flag defined above
}

// loadSession reads path. A bare file name that does not exist in the
// working directory is looked up in the storage directory.
func (c *cli) loadSession(path string) (*device.Session, error) {
	s, err := device.ReadFile(path)
	if err == nil || !errors.Is(err, fs.ErrNotExist) || filepath.Base(path) != path {
		return s, err
	}
	return device.LoadFromDir(c.cfg.Storage.Dir, path)
}

func printMethods(w io.Writer, s *device.Session) {
	methods := s.Methods()
	names := s.MethodNames()
	width := 0
	for _, name := range names {
		width = max(width, len(name))
	}
	for _, name := range names {
		fmt.Fprintf(w, "%-*s  %s\n", width, name, methods[name])
	}
}

// maskToken keeps the last four characters.
func maskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}
