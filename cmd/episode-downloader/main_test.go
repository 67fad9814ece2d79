package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ytget/episode-downloader/internal/checkpoint"
	"github.com/ytget/episode-downloader/internal/config"
	"github.com/ytget/episode-downloader/internal/model"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.FileEnv, filepath.Join(t.TempDir(), "absent.yaml"))

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.RunContext(context.Background(), append([]string{AppName}, args...))
	return out.String(), err
}

func saveCatalog(t *testing.T, dir string, items ...model.Item) {
	t.Helper()
	catalog := model.NewCatalog("https://example.com/show/")
	for _, item := range items {
		require.NoError(t, catalog.Add(item))
	}
	require.NoError(t, checkpoint.NewStore().Save(dir, catalog))
}

func TestConfigCommand(t *testing.T) {
	out, err := run(t, "--index", "https://example.com/show/", "--fillers", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "indexURL: https://example.com/show/")
	assert.Contains(t, out, "downloadFillers: true")
	assert.Contains(t, out, "saveInterval: 5s")
}

func TestConfigCommand_InvalidLogFormat(t *testing.T) {
	_, err := run(t, "--log-format", "xml", "config")
	assert.Error(t, err)
}

func TestListCommand(t *testing.T) {
	dir := t.TempDir()
	saveCatalog(t, dir,
		model.Item{Ordinal: 1, Name: "Pilot", TotalBytes: 2048},
		model.Item{Ordinal: 2, Name: "Beach", Category: model.CategoryFiller, Ignored: true},
	)

	out, err := run(t, "--dir", dir, "--log-level", "error", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Pilot")
	assert.Contains(t, out, "2.0KB")
	assert.Contains(t, out, "ignored")
}

func TestIgnoreCommand(t *testing.T) {
	dir := t.TempDir()
	saveCatalog(t, dir, model.Item{Ordinal: 1}, model.Item{Ordinal: 2})

	_, err := run(t, "--dir", dir, "--log-level", "error", "ignore", "1", "2")
	require.NoError(t, err)
	_, err = run(t, "--dir", dir, "--log-level", "error", "unignore", "2")
	require.NoError(t, err)

	loaded, err := checkpoint.NewStore().Load(dir)
	require.NoError(t, err)
	one, _ := loaded.Get(1)
	two, _ := loaded.Get(2)
	assert.True(t, one.Ignored)
	assert.False(t, two.Ignored)

	_, err = run(t, "--dir", dir, "ignore", "first")
	assert.Error(t, err)
}

func TestItemState(t *testing.T) {
	tests := []struct {
		item     model.Item
		expected model.ItemState
	}{
		{model.Item{}, model.ItemStatePending},
		{model.Item{Completed: true}, model.ItemStateCompleted},
		{model.Item{Completed: true, Ignored: true}, model.ItemStateIgnored},
	}

	for _, test := range tests {
		if result := itemState(test.item); result != test.expected {
			t.Errorf("itemState(%+v) = %s, expected %s", test.item, result, test.expected)
		}
	}
}

func TestLoadConfig_PreferencesBetweenFileAndFlags(t *testing.T) {
	t.Setenv(config.FileEnv, filepath.Join(t.TempDir(), "absent.yaml"))
	settings := config.NewSettings(test.NewApp())
	settings.SetIndexURL("https://example.com/stored/")
	settings.SetMaxAttempts(7)
	settings.SetDownloadFillers(true)

	var cfg config.Config
	app := newApp()
	app.Action = func(c *cli.Context) error {
		var err error
		cfg, err = loadConfig(c, settings.Apply)
		return err
	}
	require.NoError(t, app.RunContext(context.Background(), []string{AppName, "--index", "https://example.com/flag/"}))

	assert.Equal(t, "https://example.com/flag/", cfg.IndexURL)
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.True(t, cfg.DownloadFillers)
}
