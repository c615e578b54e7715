package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/KilimcininKorOglu/obaidx/internal/backend"
	"github.com/KilimcininKorOglu/obaidx/internal/config"
	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/logging"
	"github.com/KilimcininKorOglu/obaidx/internal/schema"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/kv"
)

// env is the container a command works on, loaded from the LDIF file.
type env struct {
	cfg    *config.Config
	logger logging.Logger
	ec     *backend.EntryContainer
}

// envFlags returns the flags every data command shares. Each command needs
// its own flag values, so the slice is built per call.
func envFlags(extra ...cli.Flag) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the YAML configuration file",
			Sources: cli.EnvVars("OBAIDX_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "ldif",
			Aliases: []string{"l"},
			Usage:   "LDIF file loaded into the container",
		},
		&cli.StringSliceFlag{
			Name:    "schema",
			Usage:   "LDIF subschema file extending the built-in schema (repeatable, added to backend.schemaFiles)",
			Sources: cli.EnvVars("OBAIDX_SCHEMA"),
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error (overrides config)",
		},
	}
	return append(flags, extra...)
}

// loadEnv reads the configuration, opens a fresh in-memory container and
// adds every entry of the LDIF file to it.
func loadEnv(ctx context.Context, c *cli.Command) (*env, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	applyFlags(c, cfg)
	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	s, err := schema.LoadSchema(cfg.Backend.SchemaFiles...)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}).WithRequestID(logging.GenerateRequestID())

	ec, err := backend.Open(kv.NewMemStore(), s, cfg, logger)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: logger, ec: ec}

	if path := c.String("ldif"); path != "" {
		if err := e.loadLDIF(ctx, path); err != nil {
			ec.Close()
			return nil, err
		}
	}
	return e, nil
}

// applyFlags lays the command line over a loaded configuration.
func applyFlags(c *cli.Command, cfg *config.Config) {
	if level := c.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	cfg.Backend.SchemaFiles = append(cfg.Backend.SchemaFiles, c.StringSlice("schema")...)
}

func (e *env) loadLDIF(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	entries, err := entry.ParseLDIF(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	start := time.Now()
	for _, en := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.ec.Add(en); err != nil {
			return fmt.Errorf("add %s: %w", en.DN, err)
		}
	}
	e.logger.Info("LDIF loaded", "file", path, "entries", len(entries), "duration", time.Since(start))
	return nil
}

func (e *env) Close() error {
	return e.ec.Close()
}

// printStats writes one line per index.
func printStats(c *cli.Command, st backend.Stats) {
	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Entries: %d\n\n", st.Entries)
	fmt.Fprintln(w, "INDEX\tTYPE\tKEYS\tMEMBERS\tTRUSTED\tLIMIT EXCEEDED")
	for _, s := range st.Indexes {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%v\t%d\n",
			s.Name, s.Type, s.Keys, s.Members, s.Trusted, s.EntryLimitExceeded)
	}
	w.Flush()
}
