package main

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/urfave/cli/v3"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/vlv"
)

// -----------------------------
// LOAD COMMAND
// -----------------------------

func loadCommand() *cli.Command {
	return &cli.Command{
		Name:  "load",
		Usage: "Load an LDIF file and print index statistics",
		Flags: envFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			e, err := loadEnv(ctx, c)
			if err != nil {
				return err
			}
			defer e.Close()

			printStats(c, e.ec.Stats())
			return nil
		},
	}
}

// -----------------------------
// SEARCH COMMAND
// -----------------------------

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Print the index candidates of a filter and the entries it matches",
		Flags: envFlags(
			&cli.StringFlag{Name: "base", Aliases: []string{"b"}, Usage: "Search base DN"},
			&cli.StringFlag{Name: "scope", Aliases: []string{"s"}, Usage: "Search scope: base, one, sub", Value: "sub"},
			&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Usage: "LDAP filter", Value: "(objectClass=*)"},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			scope, err := entry.ParseScope(c.String("scope"))
			if err != nil {
				return err
			}
			f, err := filter.Parse(c.String("filter"))
			if err != nil {
				return fmt.Errorf("invalid filter: %w", err)
			}

			e, err := loadEnv(ctx, c)
			if err != nil {
				return err
			}
			defer e.Close()

			out := c.Root().Writer
			fmt.Fprintf(out, "Candidates: %s\n", e.ec.Candidates(nil, f))

			entries, err := e.ec.Search(c.String("base"), scope, f)
			if err != nil {
				return err
			}
			for _, en := range entries {
				fmt.Fprintln(out, en.DN)
			}
			fmt.Fprintf(out, "%d entries\n", len(entries))
			return nil
		},
	}
}

// -----------------------------
// VLV COMMAND
// -----------------------------

func vlvCommand() *cli.Command {
	return &cli.Command{
		Name:  "vlv",
		Usage: "Print a window of a VLV index",
		Flags: envFlags(
			&cli.StringFlag{Name: "index", Aliases: []string{"i"}, Usage: "VLV index name", Required: true},
			&cli.IntFlag{Name: "offset", Usage: "1-based target offset", Value: 1},
			&cli.StringFlag{Name: "assertion", Aliases: []string{"a"}, Usage: "Target the first entry sorting at or after this value"},
			&cli.IntFlag{Name: "before", Usage: "Entries before the target"},
			&cli.IntFlag{Name: "after", Usage: "Entries after the target", Value: 9},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			e, err := loadEnv(ctx, c)
			if err != nil {
				return err
			}
			defer e.Close()

			name := c.String("index")
			v := e.ec.VLVIndex(name)
			if v == nil {
				return fmt.Errorf("no VLV index named %s", name)
			}

			before, after := int(c.Int("before")), int(c.Int("after"))
			req := vlv.NewOffsetRequest(int(c.Int("offset")), before, after)
			if c.IsSet("assertion") {
				req = vlv.NewAssertionRequest([]byte(c.String("assertion")), before, after)
			}

			resp, err := e.ec.VLVSearch(name, v.Query(req))
			if err != nil {
				return err
			}

			out := c.Root().Writer
			fmt.Fprintf(out, "Target %d of %d\n", resp.TargetPosition, resp.ContentCount)
			for _, id := range resp.IDs {
				en, err := e.ec.GetByID(id)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, en.DN)
			}
			return nil
		},
	}
}

// -----------------------------
// DUMP COMMAND
// -----------------------------

func dumpCommand() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "Print the keys and ID sets of an attribute index",
		Flags: envFlags(
			&cli.StringFlag{Name: "attribute", Aliases: []string{"A"}, Usage: "Indexed attribute", Required: true},
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Index type", Value: "equality"},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			t, err := index.ParseIndexType(c.String("type"))
			if err != nil {
				return err
			}

			e, err := loadEnv(ctx, c)
			if err != nil {
				return err
			}
			defer e.Close()

			a := e.ec.AttributeIndex(c.String("attribute"))
			if a == nil || a.Index(t) == nil {
				return fmt.Errorf("%s has no %s index", c.String("attribute"), t)
			}

			out := c.Root().Writer
			keys := 0
			err = a.Index(t).ListKeys(nil, func(key []byte, set *index.EntryIDSet) bool {
				keys++
				fmt.Fprintf(out, "%s\t%s\n", displayKey(key), set)
				return true
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d keys\n", keys)
			return nil
		},
	}
}

// displayKey quotes keys that are not printable text.
func displayKey(key []byte) string {
	if !utf8.Valid(key) {
		return fmt.Sprintf("%x", key)
	}
	for _, r := range string(key) {
		if !strconv.IsPrint(r) {
			return strconv.Quote(string(key))
		}
	}
	return string(key)
}

// -----------------------------
// REBUILD COMMAND
// -----------------------------

func rebuildCommand() *cli.Command {
	return &cli.Command{
		Name:  "rebuild",
		Usage: "Rebuild indexes and print statistics",
		Flags: envFlags(
			&cli.StringSliceFlag{
				Name:    "index",
				Aliases: []string{"i"},
				Usage:   "Attribute, sub-index or VLV index to rebuild (default: all)",
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			e, err := loadEnv(ctx, c)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.ec.Rebuild(ctx, c.StringSlice("index")...); err != nil {
				return err
			}
			printStats(c, e.ec.Stats())
			return nil
		},
	}
}
