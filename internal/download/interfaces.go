package download

import (
	"context"

	"github.com/ytget/episode-downloader/internal/model"
	"github.com/ytget/episode-downloader/internal/progress"
	"github.com/ytget/episode-downloader/internal/retry"
)

// Downloader defines the interface for the download service.
type Downloader interface {
	Init(ctx context.Context) error
	DownloadAll(ctx context.Context) (Summary, error)
	DownloadItem(ctx context.Context, ordinal int) (retry.Outcome, error)

	// Cancel stops the in-flight transfer of ordinal, if any
	Cancel(ordinal int) bool

	// SyncCatalog merges newly discovered items and returns how many were added
	SyncCatalog(ctx context.Context) (int, error)

	SetIgnored(ordinal int, ignored bool) error
	Items() []model.Item
	Subscribe(buffer int) *progress.Subscription
	Close()
}

var _ Downloader = (*Service)(nil)
