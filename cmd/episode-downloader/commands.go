package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"

	"github.com/ytget/episode-downloader/internal/model"
	"github.com/ytget/episode-downloader/internal/platform"
	"github.com/ytget/episode-downloader/internal/progress"
)

func downloadCommand() *cli.Command {
	itemFlag := cli.IntFlag{
		Name:  "item",
		Usage: "download only this episode, whatever its category",
	}
	syncFlag := cli.BoolFlag{
		Name:  "sync",
		Usage: "look for new episodes on the index page first",
	}

	return &cli.Command{
		Name:  "download",
		Usage: "download every pending episode in order",
		Flags: []cli.Flag{&itemFlag, &syncFlag},
		Action: func(c *cli.Context) error {
			service, logger, err := newService(c)
			if err != nil {
				return err
			}

			sub := service.Subscribe(progress.DefaultBuffer)
			group, ctx := errgroup.WithContext(c.Context)
			group.Go(func() error {
				progress.Drain(ctx, sub, progress.NewLogSink(logger))
				return nil
			})
			group.Go(func() error {
				defer service.Close()

				if c.Bool(syncFlag.Name) {
					if _, err := service.SyncCatalog(ctx); err != nil {
						return err
					}
				}

				if c.IsSet(itemFlag.Name) {
					ordinal := c.Int(itemFlag.Name)
					outcome, err := service.DownloadItem(ctx, ordinal)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "#%d %s\n", ordinal, outcome.State)
					if outcome.State == model.ItemStateExhausted {
						return cli.Exit(outcome.LastErr.Error(), 2)
					}
					return nil
				}

				summary, err := service.DownloadAll(ctx)
				fmt.Fprintln(c.App.Writer, summary)
				if err != nil {
					return err
				}
				if exhausted := summary.Ordinals(model.ItemStateExhausted); len(exhausted) > 0 {
					return cli.Exit(fmt.Sprintf("gave up on episodes %v", exhausted), 2)
				}
				return nil
			})
			return group.Wait()
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "add newly published episodes to the checkpoint",
		Action: func(c *cli.Context) error {
			service, _, err := newService(c)
			if err != nil {
				return err
			}
			defer service.Close()

			added, err := service.SyncCatalog(c.Context)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%d new episodes, %d total\n", added, len(service.Items()))
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list the episodes of the checkpoint",
		Action: func(c *cli.Context) error {
			service, _, err := newService(c)
			if err != nil {
				return err
			}
			defer service.Close()

			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\t\tSTATE\tSIZE\tNAME")
			for _, item := range service.Items() {
				size := "-"
				if item.TotalBytes > 0 {
					size = progress.FormatBytes(item.TotalBytes)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", item.Ordinal, item.Category.Letter(), itemState(item), size, item.GetDisplayName())
			}
			return w.Flush()
		},
	}
}

func itemState(item model.Item) model.ItemState {
	switch {
	case item.Ignored:
		return model.ItemStateIgnored
	case item.Completed:
		return model.ItemStateCompleted
	default:
		return model.ItemStatePending
	}
}

func ignoreCommand(name string, ignored bool) *cli.Command {
	usage := "exclude episodes from downloads"
	if !ignored {
		usage = "include ignored episodes again"
	}

	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "ORDINAL...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("at least one episode number is required", 1)
			}
			ordinals := make([]int, 0, c.NArg())
			for _, arg := range c.Args().Slice() {
				ordinal, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid episode number %q: %w", arg, err)
				}
				ordinals = append(ordinals, ordinal)
			}

			service, _, err := newService(c)
			if err != nil {
				return err
			}
			defer service.Close()

			for _, ordinal := range ordinals {
				if err := service.SetIgnored(ordinal, ignored); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func openCommand() *cli.Command {
	return &cli.Command{
		Name:  "open",
		Usage: "open the download directory in the file manager",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			dir, err := cfg.Dir()
			if err != nil {
				return err
			}
			return platform.OpenDirectory(dir)
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "print the effective configuration",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			_, err = c.App.Writer.Write(data)
			return err
		},
	}
}
