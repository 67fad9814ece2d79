package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ytget/episode-downloader/internal/checkpoint"
	"github.com/ytget/episode-downloader/internal/model"
	"github.com/ytget/episode-downloader/internal/platform"
	"github.com/ytget/episode-downloader/internal/progress"
	"github.com/ytget/episode-downloader/internal/retry"
	"github.com/ytget/episode-downloader/internal/site"
	"github.com/ytget/episode-downloader/internal/transfer"
)

// ErrNotInitialized is returned by operations that need a loaded catalog
var ErrNotInitialized = errors.New("download service not initialized")

// Options configures a Service
type Options struct {
	Dir            string
	IndexURL       string
	Policy         retry.Policy
	SkipCategories []model.Category
	SaveInterval   time.Duration
	ReadTimeout    time.Duration
	UserAgent      string
	CheckFreeSpace bool
	Client         *http.Client
	Logger         log.FieldLogger

	// Sleep replaces the backoff sleep, for tests
	Sleep func(context.Context, time.Duration) error
}

// Service handles download operations for one download directory
type Service struct {
	opts   Options
	log    log.FieldLogger
	site   site.Site
	store  *checkpoint.Store
	events *progress.Bus

	mu         sync.RWMutex
	catalog    *model.Catalog
	engine     *transfer.Engine
	controller *retry.Controller
	direct     *retry.Controller
}

// NewService creates a new download service. Nothing touches the disk or
// the network before Init.
func NewService(opts Options, s site.Site) *Service {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &Service{
		opts:   opts,
		log:    opts.Logger.WithField("dir", opts.Dir),
		site:   s,
		store:  checkpoint.NewStore(),
		events: progress.NewBus(),
	}
}

// Init loads the checkpoint of the download directory, or creates an empty
// one when there is none, and corrects completed items whose file does not
// match. An empty catalog is filled by discovery. Checkpoint errors are
// returned as is; a corrupt checkpoint is never replaced.
func (s *Service) Init(ctx context.Context) error {
	if err := platform.CreateDirectoryIfNotExists(s.opts.Dir); err != nil {
		return fmt.Errorf("%w: creating %s: %v", model.ErrCheckpointWrite, s.opts.Dir, err)
	}

	var catalog *model.Catalog
	if !s.store.Exists(s.opts.Dir) {
		catalog = model.NewCatalog(s.opts.IndexURL)
		if err := s.store.Save(s.opts.Dir, catalog); err != nil {
			return err
		}
		s.log.Info("created checkpoint")
	} else {
		var err error
		catalog, err = s.store.Load(s.opts.Dir)
		if err != nil {
			return err
		}
		if catalog.IndexURL() == "" && s.opts.IndexURL != "" {
			catalog.SetIndexURL(s.opts.IndexURL)
		} else if s.opts.IndexURL != "" && catalog.IndexURL() != s.opts.IndexURL {
			s.log.WithField("index", catalog.IndexURL()).Warn("checkpoint belongs to another index, keeping it")
		}

		corrected := checkpoint.Reconcile(catalog, platform.FileSize)
		if len(corrected) > 0 {
			s.log.WithField("ordinals", corrected).Warn("completed items do not match their files and will be downloaded again")
			if err := s.store.Save(s.opts.Dir, catalog); err != nil {
				return err
			}
		}
		s.log.WithField("items", catalog.Len()).Info("loaded checkpoint")
	}

	s.setup(catalog)

	if catalog.Len() == 0 {
		if _, err := s.SyncCatalog(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) setup(catalog *model.Catalog) {
	engine := transfer.NewEngine(transfer.Options{
		Dir:            s.opts.Dir,
		SaveInterval:   s.opts.SaveInterval,
		ReadTimeout:    s.opts.ReadTimeout,
		UserAgent:      s.opts.UserAgent,
		CheckFreeSpace: s.opts.CheckFreeSpace,
		Client:         s.opts.Client,
		Logger:         s.log,
	}, catalog, s.store, s.site, s.events)

	controllerOpts := retry.Options{
		Dir:            s.opts.Dir,
		Policy:         s.opts.Policy,
		SkipCategories: s.opts.SkipCategories,
		Sleep:          s.opts.Sleep,
		Logger:         s.log,
	}
	controller := retry.NewController(controllerOpts, catalog, s.store, engine, s.events)

	// a requested item is downloaded whatever its category
	controllerOpts.SkipCategories = nil
	direct := retry.NewController(controllerOpts, catalog, s.store, engine, s.events)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = catalog
	s.engine = engine
	s.controller = controller
	s.direct = direct
}

func (s *Service) components() (*model.Catalog, *transfer.Engine, *retry.Controller, *retry.Controller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.catalog == nil {
		return nil, nil, nil, nil, ErrNotInitialized
	}
	return s.catalog, s.engine, s.controller, s.direct, nil
}

// DownloadAll runs every item once, in ordinal order and one at a time. An
// item that runs out of attempts does not stop the run; checkpoint failures
// and cancellation of ctx do.
func (s *Service) DownloadAll(ctx context.Context) (Summary, error) {
	catalog, _, controller, _, err := s.components()
	if err != nil {
		return Summary{}, err
	}

	summary := newSummary(newRunID())
	logger := s.log.WithField("run", summary.Run)
	items := catalog.All()
	logger.WithField("items", len(items)).Info("run started")

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		outcome, err := controller.Run(ctx, item.Ordinal)
		summary.add(item.Ordinal, outcome)
		if err != nil {
			logger.WithError(err).Error("run aborted")
			return summary, err
		}
	}

	logger.WithFields(log.Fields{
		"completed": summary.Count(model.ItemStateCompleted),
		"exhausted": summary.Count(model.ItemStateExhausted),
		"progress":  fmt.Sprintf("%.0f%%", catalog.Progress()*100),
	}).Info("run finished")
	return summary, nil
}

// DownloadItem runs a single item now, regardless of skipped categories. It
// may run next to DownloadAll; when both reach the same item only one
// transfer goes ahead and the other reports it as skipped.
func (s *Service) DownloadItem(ctx context.Context, ordinal int) (retry.Outcome, error) {
	_, _, _, direct, err := s.components()
	if err != nil {
		return retry.Outcome{}, err
	}
	return direct.Run(ctx, ordinal)
}

// Cancel stops the in-flight transfer of ordinal. It returns false when
// nothing was running.
func (s *Service) Cancel(ordinal int) bool {
	_, engine, _, _, err := s.components()
	if err != nil {
		return false
	}
	return engine.Cancel(ordinal)
}

// SyncCatalog discovers the index again and adds the items whose ordinals
// are new. Known items keep their state.
func (s *Service) SyncCatalog(ctx context.Context) (int, error) {
	catalog, _, _, _, err := s.components()
	if err != nil {
		return 0, err
	}
	indexURL := catalog.IndexURL()
	if indexURL == "" {
		return 0, fmt.Errorf("syncing catalog: no index locator")
	}

	items, err := s.site.Discover(ctx, indexURL)
	if err != nil {
		return 0, fmt.Errorf("syncing catalog: %w", err)
	}
	added := catalog.Merge(items)
	if added > 0 {
		if err := s.store.Save(s.opts.Dir, catalog); err != nil {
			return added, err
		}
	}
	s.log.WithFields(log.Fields{"discovered": len(items), "added": added}).Info("catalog synced")
	return added, nil
}

// SetIgnored marks an item as ignored or not and persists it. Ignoring an
// item stops its transfer.
func (s *Service) SetIgnored(ordinal int, ignored bool) error {
	catalog, engine, _, _, err := s.components()
	if err != nil {
		return err
	}
	if err := catalog.Update(ordinal, func(it *model.Item) { it.Ignored = ignored }); err != nil {
		return fmt.Errorf("setting ignored on item %d: %w", ordinal, err)
	}
	if err := s.store.Save(s.opts.Dir, catalog); err != nil {
		return err
	}
	if ignored {
		engine.Cancel(ordinal)
	}
	return nil
}

// Items returns the catalog in ordinal order
func (s *Service) Items() []model.Item {
	catalog, _, _, _, err := s.components()
	if err != nil {
		return nil
	}
	return catalog.All()
}

// Subscribe returns a subscription to the progress of every item
func (s *Service) Subscribe(buffer int) *progress.Subscription {
	return s.events.Subscribe(buffer)
}

// Close ends every subscription
func (s *Service) Close() {
	s.events.Close()
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
