package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	log "github.com/sirupsen/logrus"

	"github.com/ytget/episode-downloader/internal/download"
	"github.com/ytget/episode-downloader/internal/model"
	"github.com/ytget/episode-downloader/internal/progress"
)

// Window size constants
const (
	WindowWidth  = 640
	WindowHeight = 480
)

// Button labels
const (
	LabelDownload = "Download"
	LabelStop     = "Stop"
	LabelSync     = "Sync"
)

// StatusWindow shows the catalog of a download service and runs it in the
// background
type StatusWindow struct {
	window  fyne.Window
	service download.Downloader
	sink    *progress.BindingSink
	log     log.FieldLogger

	itemsMu sync.RWMutex
	items   []model.Item

	// UI components
	list     *widget.List
	latest   *widget.Label
	result   *widget.Label
	startBtn *widget.Button
	stopBtn  *widget.Button
	syncBtn  *widget.Button

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewStatusWindow fills window with the catalog of service. Progress is read
// from sink, which the caller feeds from a subscription of service.
func NewStatusWindow(window fyne.Window, service download.Downloader, sink *progress.BindingSink, logger log.FieldLogger) *StatusWindow {
	w := &StatusWindow{
		window:  window,
		service: service,
		sink:    sink,
		log:     logger,
		items:   service.Items(),
	}
	w.createUI()
	window.SetOnClosed(func() {
		w.Stop()
		w.Wait()
	})
	return w
}

func (w *StatusWindow) createUI() {
	w.list = widget.NewList(
		func() int {
			w.itemsMu.RLock()
			defer w.itemsMu.RUnlock()
			return len(w.items)
		},
		func() fyne.CanvasObject {
			return container.NewVBox(widget.NewLabel(""), widget.NewProgressBar(), widget.NewLabel(""))
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) { w.updateRow(id, obj) },
	)

	w.latest = widget.NewLabelWithData(w.sink.Latest())
	w.latest.Truncation = fyne.TextTruncateEllipsis
	w.result = widget.NewLabel("")

	w.startBtn = widget.NewButton(LabelDownload, w.Start)
	w.startBtn.Importance = widget.HighImportance
	w.stopBtn = widget.NewButton(LabelStop, w.Stop)
	w.stopBtn.Disable()
	w.syncBtn = widget.NewButton(LabelSync, w.Sync)

	top := container.NewBorder(nil, nil, nil, container.NewHBox(w.syncBtn, w.stopBtn, w.startBtn), w.latest)
	w.window.SetContent(container.NewBorder(top, w.result, nil, nil, w.list))
}

func (w *StatusWindow) updateRow(id widget.ListItemID, obj fyne.CanvasObject) {
	w.itemsMu.RLock()
	if id < 0 || id >= len(w.items) {
		w.itemsMu.RUnlock()
		return
	}
	item := w.items[id]
	w.itemsMu.RUnlock()

	row := obj.(*fyne.Container)
	title := row.Objects[0].(*widget.Label)
	bar := row.Objects[1].(*widget.ProgressBar)
	status := row.Objects[2].(*widget.Label)

	title.SetText(RowTitle(item))
	bar.Bind(w.sink.Fraction(item.Ordinal))
	status.Bind(w.sink.Status(item.Ordinal))
}

// RowTitle is the title line of the row of item
func RowTitle(item model.Item) string {
	title := fmt.Sprintf("#%d %s", item.Ordinal, item.GetDisplayName())
	if letter := strings.TrimSpace(item.Category.Letter()); letter != "" {
		title += " [" + letter + "]"
	}
	if item.Ignored {
		title += " (ignored)"
	}
	return title
}

// Running reports whether a catalog run is in progress
func (w *StatusWindow) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// Start begins a run over the catalog unless one is in progress
func (w *StatusWindow) Start() {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	w.startBtn.Disable()
	w.syncBtn.Disable()
	w.stopBtn.Enable()
	w.result.SetText("")

	go func() {
		defer close(done)
		summary, err := w.service.DownloadAll(ctx)
		cancel()
		w.finish(summary, err)
	}()
}

// Stop cancels the run in progress
func (w *StatusWindow) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the last started run has finished
func (w *StatusWindow) Wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (w *StatusWindow) finish(summary download.Summary, err error) {
	w.mu.Lock()
	w.cancel = nil
	w.mu.Unlock()

	text := summary.String()
	if err != nil {
		w.log.WithError(err).Error("catalog run stopped")
		text = strings.TrimSpace(fmt.Sprintf("%s (stopped: %v)", text, err))
	} else {
		w.log.WithField("summary", text).Info("catalog run finished")
	}

	fyne.Do(func() {
		w.result.SetText(text)
		w.startBtn.Enable()
		w.syncBtn.Enable()
		w.stopBtn.Disable()
		w.refresh()
	})
}

// Sync looks for new items on the index page and refreshes the list
func (w *StatusWindow) Sync() {
	w.syncBtn.Disable()
	go func() {
		added, err := w.service.SyncCatalog(context.Background())
		text := fmt.Sprintf("%d new episodes", added)
		if err != nil {
			w.log.WithError(err).Error("sync failed")
			text = "sync failed: " + err.Error()
		}
		fyne.Do(func() {
			w.result.SetText(text)
			if !w.Running() {
				w.syncBtn.Enable()
			}
			w.refresh()
		})
	}()
}

func (w *StatusWindow) refresh() {
	items := w.service.Items()
	w.itemsMu.Lock()
	w.items = items
	w.itemsMu.Unlock()
	w.list.Refresh()
}
