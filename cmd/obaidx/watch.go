package main

import (
	"context"
	"errors"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/KilimcininKorOglu/obaidx/internal/config"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Load an LDIF file, then apply configuration changes as the file is edited",
		Flags: envFlags(
			&cli.DurationFlag{Name: "poll", Usage: "Config file poll interval", Value: time.Second},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.String("config")
			if path == "" {
				return errors.New("watch requires --config")
			}

			e, err := loadEnv(ctx, c)
			if err != nil {
				return err
			}
			defer e.Close()
			printStats(c, e.ec.Stats())

			// Reloads are serialized by the watcher loop.
			onChange := func(_, newCfg *config.Config) {
				applyFlags(c, newCfg)
				rebuild, err := e.ec.ApplyConfig(newCfg)
				if err != nil {
					e.logger.Error("apply config failed", "error", err)
					return
				}
				if len(rebuild) > 0 {
					e.logger.Info("rebuilding indexes", "indexes", rebuild)
					if err := e.ec.Rebuild(ctx, rebuild...); err != nil {
						e.logger.Error("rebuild failed", "error", err)
						return
					}
				}
				printStats(c, e.ec.Stats())
			}

			poll := c.Duration("poll")
			w, err := config.NewConfigWatcher(&config.WatcherConfig{
				FilePath:     path,
				PollInterval: poll,
				Debounce:     2 * poll,
				OnChange:     onChange,
				Logger:       e.logger,
			})
			if err != nil {
				return err
			}
			w.Start(ctx)
			defer w.Stop()

			e.logger.Info("watching configuration", "file", path)
			<-ctx.Done()
			return nil
		},
	}
}
