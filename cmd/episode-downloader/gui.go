package main

import (
	"context"
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/urfave/cli/v2"

	"github.com/ytget/episode-downloader/internal/config"
	"github.com/ytget/episode-downloader/internal/progress"
	"github.com/ytget/episode-downloader/internal/ui"
)

func guiCommand() *cli.Command {
	return &cli.Command{
		Name:  "gui",
		Usage: "show a window with the progress of every episode",
		Action: func(c *cli.Context) error {
			a := app.NewWithID(AppID)
			settings := config.NewSettings(a)

			// stored preferences sit between the config file and the flags
			cfg, err := loadConfig(c, settings.Apply)
			if err != nil {
				return err
			}
			service, logger, err := startService(c.Context, cfg)
			if err != nil {
				return err
			}
			defer service.Close()
			settings.Save(cfg)

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()
			sink := progress.NewBindingSink()
			logSink := progress.NewLogSink(logger)
			go progress.Drain(ctx, service.Subscribe(progress.DefaultBuffer), progress.SinkFunc(func(e progress.Event) {
				sink.Handle(e)
				logSink.Handle(e)
			}))

			window := a.NewWindow(fmt.Sprintf("%s %s", AppName, version))
			window.Resize(fyne.NewSize(ui.WindowWidth, ui.WindowHeight))
			ui.NewStatusWindow(window, service, sink, logger)

			stop := context.AfterFunc(c.Context, func() { fyne.Do(a.Quit) })
			defer stop()

			window.ShowAndRun()
			return nil
		},
	}
}
