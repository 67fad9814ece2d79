package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ytget/episode-downloader/internal/config"
	"github.com/ytget/episode-downloader/internal/download"
	"github.com/ytget/episode-downloader/internal/site"
	"github.com/ytget/episode-downloader/internal/site/htmlindex"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

const (
	AppID   = "com.ytget.episode-downloader"
	AppName = "episode-downloader"
)

var (
	configFlag = cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path of the YAML configuration file",
		EnvVars: []string{config.FileEnv},
	}
	dirFlag = cli.StringFlag{
		Name:    "dir",
		Aliases: []string{"d"},
		Usage:   "download directory holding the checkpoint and the episodes",
	}
	indexFlag = cli.StringFlag{
		Name:    "index",
		Aliases: []string{"i"},
		Usage:   "index page listing the episodes",
	}
	fillersFlag = cli.BoolFlag{
		Name:  "fillers",
		Usage: "download filler episodes too",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log-level",
		Usage: "panic, fatal, error, warn, info, debug or trace",
	}
	logFormatFlag = cli.StringFlag{
		Name:  "log-format",
		Usage: "text or json",
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    AppName,
		Usage:   "download a numbered series of episodes, resuming where the last run stopped",
		Version: version,
		Flags: []cli.Flag{
			&configFlag,
			&dirFlag,
			&indexFlag,
			&fillersFlag,
			&logLevelFlag,
			&logFormatFlag,
		},
		Commands: []*cli.Command{
			downloadCommand(),
			syncCommand(),
			listCommand(),
			ignoreCommand("ignore", true),
			ignoreCommand("unignore", false),
			openCommand(),
			configCommand(),
			guiCommand(),
		},
	}
}

// loadConfig layers the command line flags over the file and environment.
// Overlays run in between, so flags still win over stored preferences.
func loadConfig(c *cli.Context, overlays ...func(*config.Config)) (config.Config, error) {
	file := c.String(configFlag.Name)
	if file == "" {
		file = config.DefaultFile()
	}
	cfg, err := config.Load(file)
	if err != nil {
		return cfg, err
	}
	for _, overlay := range overlays {
		overlay(&cfg)
	}

	if c.IsSet(dirFlag.Name) {
		cfg.DownloadDir = c.String(dirFlag.Name)
	}
	if c.IsSet(indexFlag.Name) {
		cfg.IndexURL = c.String(indexFlag.Name)
	}
	if c.IsSet(fillersFlag.Name) {
		cfg.DownloadFillers = c.Bool(fillersFlag.Name)
	}
	if c.IsSet(logLevelFlag.Name) {
		cfg.LogLevel = c.String(logLevelFlag.Name)
	}
	if c.IsSet(logFormatFlag.Name) {
		cfg.LogFormat = c.String(logFormatFlag.Name)
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) (*log.Logger, error) {
	logger := log.New()
	if err := cfg.ConfigureLogger(logger); err != nil {
		return nil, err
	}
	return logger, nil
}

func newRegistry(cfg config.Config, client *http.Client) *site.Registry {
	registry := site.NewRegistry()
	registry.SetFallback(htmlindex.New(htmlindex.Options{
		ItemSelector: cfg.ItemSelector,
		RowSelector:  cfg.RowSelector,
		Client:       client,
		UserAgent:    cfg.UserAgent,
	}))
	return registry
}

// newService loads the configuration and initializes the download service
// of the configured directory.
func newService(c *cli.Context) (*download.Service, log.FieldLogger, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	return startService(c.Context, cfg)
}

func startService(ctx context.Context, cfg config.Config) (*download.Service, log.FieldLogger, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	dir, err := cfg.Dir()
	if err != nil {
		return nil, nil, err
	}

	client := &http.Client{Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: cfg.ResponseTimeout,
	}}

	service := download.NewService(download.Options{
		Dir:            dir,
		IndexURL:       cfg.IndexURL,
		Policy:         cfg.Policy(),
		SkipCategories: cfg.Skipped(),
		SaveInterval:   cfg.SaveInterval,
		ReadTimeout:    cfg.ReadTimeout,
		UserAgent:      cfg.UserAgent,
		CheckFreeSpace: cfg.CheckFreeSpace,
		Client:         client,
		Logger:         logger,
	}, newRegistry(cfg, client))

	if err := service.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("initializing %s: %w", dir, err)
	}
	return service, logger, nil
}
