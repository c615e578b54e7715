// Package main provides the obaidx command, which loads LDIF data into an
// in-memory entry container and inspects its attribute and VLV indexes.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	exitCode := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(exitCode)
}

// run executes the CLI and returns an exit code.
// This is separated from main() to facilitate testing.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := newApp()
	app.Writer = stdout
	app.ErrWriter = stderr

	if err := app.Run(ctx, args); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "obaidx",
		Usage:   "Inspect the attribute and VLV indexes of an LDAP entry container",
		Version: version,
		Commands: []*cli.Command{
			loadCommand(),
			searchCommand(),
			vlvCommand(),
			dumpCommand(),
			rebuildCommand(),
			watchCommand(),
			versionCommand(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Present() {
				return fmt.Errorf("unknown command: %s", c.Args().First())
			}
			return cli.ShowAppHelp(c)
		},
	}
}
