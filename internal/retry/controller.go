package retry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ytget/episode-downloader/internal/checkpoint"
	"github.com/ytget/episode-downloader/internal/model"
	"github.com/ytget/episode-downloader/internal/platform"
	"github.com/ytget/episode-downloader/internal/progress"
	"github.com/ytget/episode-downloader/internal/transfer"
)

// Transferer performs a single transfer attempt
type Transferer interface {
	Transfer(ctx context.Context, ordinal int) error
}

// Outcome is how an item ended in this run
type Outcome struct {
	State    model.ItemState
	Attempts int
	LastErr  error
}

// Options configures a Controller
type Options struct {
	Dir            string
	Policy         Policy
	SkipCategories []model.Category
	SizeOf         checkpoint.SizeFunc
	Sleep          func(context.Context, time.Duration) error
	Logger         log.FieldLogger
}

// Controller drives one item through repeated transfer attempts
type Controller struct {
	dir    string
	policy Policy
	skip   []model.Category
	sizeOf checkpoint.SizeFunc
	sleep  func(context.Context, time.Duration) error
	log    log.FieldLogger

	catalog  *model.Catalog
	store    transfer.CatalogSaver
	transfer Transferer
	events   progress.Publisher
}

// NewController creates a controller
func NewController(opts Options, catalog *model.Catalog, store transfer.CatalogSaver, t Transferer, events progress.Publisher) *Controller {
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	if opts.SizeOf == nil {
		opts.SizeOf = platform.FileSize
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}

	return &Controller{
		dir:      opts.Dir,
		policy:   opts.Policy,
		skip:     opts.SkipCategories,
		sizeOf:   opts.SizeOf,
		sleep:    opts.Sleep,
		log:      opts.Logger,
		catalog:  catalog,
		store:    store,
		transfer: t,
		events:   events,
	}
}

// Run takes the item with ordinal to a terminal state for this run. Only
// fatal errors are returned: checkpoint failures and cancellation of ctx.
func (c *Controller) Run(ctx context.Context, ordinal int) (Outcome, error) {
	item, ok := c.catalog.Get(ordinal)
	if !ok {
		return Outcome{}, fmt.Errorf("running item %d: %w", ordinal, model.ErrNotFound)
	}
	logger := c.log.WithField("ordinal", ordinal)

	if item.Ignored {
		c.events.Publish(progress.Zero(ordinal, model.ItemStateIgnored))
		return Outcome{State: model.ItemStateIgnored}, nil
	}
	if slices.Contains(c.skip, item.Category) {
		c.events.Publish(progress.Zero(ordinal, model.ItemStateSkipped))
		return Outcome{State: model.ItemStateSkipped}, nil
	}

	if item.Completed {
		if checkpoint.Verified(item, c.sizeOf) {
			c.events.Publish(progress.Done(ordinal, item.TotalBytes))
			return Outcome{State: model.ItemStateCompleted}, nil
		}
		logger.Warn("completed item does not match the file on disk, downloading again")
		if err := c.update(ordinal, func(it *model.Item) { it.Completed = false }); err != nil {
			return Outcome{State: model.ItemStateFailed, LastErr: err}, err
		}
	}

	for attempt := 1; ; attempt++ {
		err := c.transfer.Transfer(ctx, ordinal)
		if err == nil {
			return Outcome{State: model.ItemStateCompleted, Attempts: attempt}, nil
		}

		outcome := Outcome{State: model.ItemStateFailed, Attempts: attempt, LastErr: err}
		entry := logger.WithField("attempt", attempt).WithError(err)

		switch {
		case ctx.Err() != nil:
			outcome.State = model.ItemStateCancelled
			c.events.Publish(progress.Zero(ordinal, model.ItemStateCancelled).WithAttempt(attempt))
			return outcome, ctx.Err()
		case model.IsFatal(err):
			return outcome, err
		case errors.Is(err, transfer.ErrTransferActive):
			outcome.State = model.ItemStateSkipped
			entry.Info("another transfer owns the item")
			c.events.Publish(progress.Zero(ordinal, model.ItemStateSkipped).WithError(err))
			return outcome, nil
		case errors.Is(err, transfer.ErrCancelled):
			outcome.State = model.ItemStateCancelled
			entry.Info("transfer cancelled")
			c.events.Publish(progress.Zero(ordinal, model.ItemStateCancelled).WithAttempt(attempt))
			return outcome, nil
		}

		if model.IsLocatorError(err) {
			entry.Debug("clearing stale transfer locator")
			if err := c.update(ordinal, func(it *model.Item) { it.TransferURL = "" }); err != nil {
				return outcome, err
			}
		}

		if attempt >= c.policy.MaxAttempts {
			outcome.State = model.ItemStateExhausted
			outcome.LastErr = fmt.Errorf("%w after %d attempts: %w", model.ErrAttemptsExhausted, attempt, err)
			entry.Error("giving up on item")
			c.events.Publish(progress.Zero(ordinal, model.ItemStateExhausted).WithAttempt(attempt).WithError(outcome.LastErr))
			return outcome, nil
		}

		delay := c.policy.Delay(attempt)
		entry.WithField("delay", delay).Warn("transfer attempt failed")
		c.events.Publish(progress.Zero(ordinal, model.ItemStateFailed).WithAttempt(attempt).WithError(err))

		if err := c.sleep(ctx, delay); err != nil {
			outcome.State = model.ItemStateCancelled
			c.events.Publish(progress.Zero(ordinal, model.ItemStateCancelled).WithAttempt(attempt))
			return outcome, err
		}
	}
}

func (c *Controller) update(ordinal int, mutation func(*model.Item)) error {
	if err := c.catalog.Update(ordinal, mutation); err != nil {
		return err
	}
	return c.store.Save(c.dir, c.catalog)
}
