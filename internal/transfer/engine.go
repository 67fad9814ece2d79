package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ytget/episode-downloader/internal/model"
	"github.com/ytget/episode-downloader/internal/platform"
	"github.com/ytget/episode-downloader/internal/progress"
	"github.com/ytget/episode-downloader/internal/site"
)

const (
	// DefaultChunkSize is the read size of the streaming loop
	DefaultChunkSize = 32 * 1024

	// DefaultSaveInterval is how often the resume token is persisted
	DefaultSaveInterval = 5 * time.Second

	// DefaultReadTimeout is how long the response body may stall
	DefaultReadTimeout = time.Minute

	// DefaultUserAgent is sent with every transfer request
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	// DestinationExt is the extension of destination files
	DestinationExt = ".mp4"
)

var (
	// ErrTransferActive is returned when the ordinal already has a live transfer
	ErrTransferActive = errors.New("transfer already active")

	// ErrCancelled is returned when a transfer stops on request
	ErrCancelled = errors.New("transfer cancelled")

	// ErrContentRange is returned when a partial response does not continue the file
	ErrContentRange = errors.New("unexpected content range")

	// ErrReadTimeout is the cause of a transfer whose response body stalled
	ErrReadTimeout = errors.New("no data within the read timeout")
)

// CatalogSaver persists a catalog for a download directory
type CatalogSaver interface {
	Save(dir string, catalog *model.Catalog) error
}

// Options configures an Engine
type Options struct {
	Dir            string
	SaveInterval   time.Duration
	ReadTimeout    time.Duration
	ChunkSize      int
	UserAgent      string
	CheckFreeSpace bool
	Client         *http.Client
	Logger         log.FieldLogger
}

// Engine performs one resumable HTTP transfer per item
type Engine struct {
	dir            string
	saveInterval   time.Duration
	readTimeout    time.Duration
	chunkSize      int
	userAgent      string
	checkFreeSpace bool
	client         *http.Client
	log            log.FieldLogger

	catalog  *model.Catalog
	store    CatalogSaver
	resolver site.Resolver
	events   progress.Publisher
	now      func() time.Time

	mu     sync.Mutex
	active map[int]context.CancelFunc
}

// NewEngine creates an engine writing into opts.Dir
func NewEngine(opts Options, catalog *model.Catalog, store CatalogSaver, resolver site.Resolver, events progress.Publisher) *Engine {
	if opts.SaveInterval <= 0 {
		opts.SaveInterval = DefaultSaveInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}

	return &Engine{
		dir:            opts.Dir,
		saveInterval:   opts.SaveInterval,
		readTimeout:    opts.ReadTimeout,
		chunkSize:      opts.ChunkSize,
		userAgent:      opts.UserAgent,
		checkFreeSpace: opts.CheckFreeSpace,
		client:         opts.Client,
		log:            opts.Logger,
		catalog:        catalog,
		store:          store,
		resolver:       resolver,
		events:         events,
		now:            time.Now,
		active:         make(map[int]context.CancelFunc),
	}
}

// DestinationPath returns the file an item is written to
func DestinationPath(dir string, ordinal int) string {
	return filepath.Join(dir, strconv.Itoa(ordinal)+DestinationExt)
}

// Active reports whether ordinal has a live transfer
func (e *Engine) Active(ordinal int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[ordinal]
	return ok
}

// Cancel requests cancellation of the live transfer of ordinal. It reports
// whether there was one.
func (e *Engine) Cancel(ordinal int) bool {
	e.mu.Lock()
	cancel, ok := e.active[ordinal]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (e *Engine) acquire(ordinal int, cancel context.CancelFunc) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.active[ordinal]; ok {
		return false
	}
	e.active[ordinal] = cancel
	return true
}

func (e *Engine) release(ordinal int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, ordinal)
}

// Transfer brings the item with ordinal to completion on disk. It blocks
// until the item is complete, fails, or ctx is done.
func (e *Engine) Transfer(ctx context.Context, ordinal int) error {
	item, ok := e.catalog.Get(ordinal)
	if !ok {
		return fmt.Errorf("transfer of item %d: %w", ordinal, model.ErrNotFound)
	}
	if item.Ignored {
		e.events.Publish(progress.Zero(ordinal, model.ItemStateIgnored))
		return nil
	}
	if item.Completed {
		e.events.Publish(progress.Done(ordinal, item.TotalBytes))
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !e.acquire(ordinal, cancel) {
		return fmt.Errorf("item %d: %w", ordinal, ErrTransferActive)
	}
	defer e.release(ordinal)

	logger := e.log.WithField("ordinal", ordinal)

	if !item.IsResolved() {
		e.events.Publish(progress.Zero(ordinal, model.ItemStateResolving))
		transferURL, err := e.resolver.Resolve(ctx, item)
		if err != nil {
			if ctx.Err() != nil {
				return cancelled(ctx, ordinal)
			}
			if !errors.Is(err, model.ErrResolutionFailed) {
				err = fmt.Errorf("%w: item %d: %w", model.ErrResolutionFailed, ordinal, err)
			}
			return err
		}
		if err := e.updateItem(ordinal, func(it *model.Item) { it.TransferURL = transferURL }); err != nil {
			return err
		}
		item.TransferURL = transferURL
		logger.WithField("url", transferURL).Debug("resolved transfer locator")
	}

	if item.Path == "" {
		path := DestinationPath(e.dir, ordinal)
		if err := e.updateItem(ordinal, func(it *model.Item) { it.Path = path }); err != nil {
			return err
		}
		item.Path = path
	}

	return e.stream(ctx, item, logger)
}

// updateItem applies mutation and persists the catalog
func (e *Engine) updateItem(ordinal int, mutation func(*model.Item)) error {
	if err := e.catalog.Update(ordinal, mutation); err != nil {
		return err
	}
	return e.store.Save(e.dir, e.catalog)
}

func cancelled(ctx context.Context, ordinal int) error {
	return fmt.Errorf("%w: item %d: %v", ErrCancelled, ordinal, context.Cause(ctx))
}

// attempt is the state of one streaming pass
type attempt struct {
	item     model.Item
	file     *os.File
	token    *ResumeToken
	offset   int64
	received int64
	total    int64
	lastSave time.Time
}

func (e *Engine) stream(ctx context.Context, item model.Item, logger log.FieldLogger) error {
	if err := platform.CreateDirectoryIfNotExists(filepath.Dir(item.Path)); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	a := &attempt{item: item}
	a.token, a.offset = e.resumePoint(item, logger)

	file, err := os.OpenFile(item.Path, os.O_CREATE|os.O_WRONLY, platform.DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("opening destination: %w", err)
	}
	a.file = file
	defer a.file.Close()

	if err := a.rewind(a.offset); err != nil {
		return err
	}

	// reqCtx is cancelled with ErrReadTimeout when the body stalls
	reqCtx, cancelReq := context.WithCancelCause(ctx)
	defer cancelReq(nil)

	resp, err := e.request(reqCtx, item.TransferURL, a.offset)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx, item.Ordinal)
		}
		return err
	}
	defer resp.Body.Close()

	done, err := a.accept(resp, logger)
	if err != nil {
		return err
	}
	if done {
		return e.complete(a, logger)
	}

	if a.total > 0 {
		if a.item.TotalBytes != a.total {
			if err := e.updateItem(item.Ordinal, func(it *model.Item) { it.TotalBytes = a.total }); err != nil {
				return err
			}
			a.item.TotalBytes = a.total
		}
		if e.checkFreeSpace {
			if err := platform.EnsureFreeSpace(filepath.Dir(item.Path), a.total-a.offset); err != nil {
				return err
			}
		}
	}

	a.lastSave = e.now()
	meter := newRateMeter(a.lastSave, a.received)
	e.events.Publish(progress.Start(item.Ordinal, a.received, a.total))

	idle := time.AfterFunc(e.readTimeout, func() { cancelReq(ErrReadTimeout) })
	defer idle.Stop()

	buf := make([]byte, e.chunkSize)
	for {
		if ctx.Err() != nil {
			e.saveToken(a, logger)
			return cancelled(ctx, item.Ordinal)
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			idle.Reset(e.readTimeout)
			if _, err := a.file.Write(buf[:n]); err != nil {
				e.saveToken(a, logger)
				return fmt.Errorf("writing destination: %w", err)
			}
			a.token.Add(a.received, a.received+int64(n))
			a.received += int64(n)

			now := e.now()
			rate := meter.Sample(now, a.received, a.total)
			e.events.Publish(progress.New(item.Ordinal, model.ItemStateTransferring, a.received, a.total, rate))

			if now.Sub(a.lastSave) >= e.saveInterval {
				e.saveToken(a, logger)
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			e.saveToken(a, logger)
			if ctx.Err() != nil {
				return cancelled(ctx, item.Ordinal)
			}
			if errors.Is(context.Cause(reqCtx), ErrReadTimeout) {
				logger.WithField("received", a.received).Warn("response body stalled")
				return model.NewTimeoutError(item.TransferURL, fmt.Errorf("item %d: %w after %d bytes", item.Ordinal, ErrReadTimeout, a.received))
			}
			if errors.Is(readErr, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: item %d: stream ended after %d of %d bytes", model.ErrTransferIncomplete, item.Ordinal, a.received, a.total)
			}
			if model.IsTimeout(readErr) {
				return model.NewTimeoutError(item.TransferURL, readErr)
			}
			return fmt.Errorf("reading response: %w", readErr)
		}
	}

	if a.total > 0 && a.received != a.total {
		e.saveToken(a, logger)
		return fmt.Errorf("%w: item %d: received %d of %d bytes", model.ErrTransferIncomplete, item.Ordinal, a.received, a.total)
	}
	if a.total <= 0 {
		a.total = a.received
	}
	return e.complete(a, logger)
}

// resumePoint loads a usable token for item or starts a fresh one
func (e *Engine) resumePoint(item model.Item, logger log.FieldLogger) (*ResumeToken, int64) {
	tokenPath := TokenPath(item.Path)
	token, err := LoadToken(tokenPath)
	if err == nil {
		size, sizeErr := platform.FileSize(item.Path)
		if sizeErr == nil && token.Valid(item.Path, size) {
			// the content range total decides whether a re-resolved source
			// still serves the same bytes
			token.Source = item.TransferURL
			offset := token.Received()
			logger.WithField("offset", offset).Info("resuming transfer")
			return token, offset
		}
		logger.Info("discarding stale resume token")
	} else if !errors.Is(err, model.ErrNotFound) {
		logger.WithError(err).Warn("discarding unreadable resume token")
	}

	if err := RemoveToken(item.Path); err != nil {
		logger.WithError(err).Warn("failed to remove resume token")
	}
	return NewToken(item.Path, item.TransferURL), 0
}

// rewind truncates the destination to offset and positions the writer there
func (a *attempt) rewind(offset int64) error {
	if err := a.file.Truncate(offset); err != nil {
		return fmt.Errorf("truncating destination: %w", err)
	}
	if _, err := a.file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seeking destination: %w", err)
	}
	a.offset = offset
	a.received = offset
	return nil
}

func (e *Engine) request(ctx context.Context, url string, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if model.IsTimeout(err) {
			return nil, model.NewTimeoutError(url, err)
		}
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	return resp, nil
}

// accept validates the response against the resume point. It reports done
// when the destination already holds the whole file.
func (a *attempt) accept(resp *http.Response, logger log.FieldLogger) (bool, error) {
	switch resp.StatusCode {
	case http.StatusOK:
		return false, a.restart(resp, logger)

	case http.StatusPartialContent:
		start, total, err := parseContentRange(resp.Header.Get("Content-Range"))
		if err == nil && start != a.offset {
			err = fmt.Errorf("%w: starts at %d, expected %d", ErrContentRange, start, a.offset)
		}
		if err == nil && a.token.TotalBytes > 0 && total > 0 && total != a.token.TotalBytes {
			err = fmt.Errorf("%w: total %d, expected %d", ErrContentRange, total, a.token.TotalBytes)
		}
		if err != nil {
			a.discard(logger)
			return false, err
		}
		a.total = max(total, 0)
		a.token.TotalBytes = a.total
		return false, nil

	case http.StatusRequestedRangeNotSatisfiable:
		_, total, _ := parseContentRange(resp.Header.Get("Content-Range"))
		if total <= 0 {
			total = a.token.TotalBytes
		}
		if a.offset > 0 && total > 0 && a.offset == total {
			a.total = total
			return true, nil
		}
		a.discard(logger)
		return false, &model.ServerError{URL: a.item.TransferURL, StatusCode: resp.StatusCode}

	default:
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return false, &model.ServerError{URL: a.item.TransferURL, StatusCode: resp.StatusCode}
		}
		return false, a.restart(resp, logger)
	}
}

// restart handles a full-body response, which rewrites the file from zero
func (a *attempt) restart(resp *http.Response, logger log.FieldLogger) error {
	if a.offset > 0 {
		logger.Info("server ignored range request, restarting from zero")
		a.token.Reset()
		if err := a.rewind(0); err != nil {
			return err
		}
	}
	a.total = max(resp.ContentLength, 0)
	a.token.TotalBytes = a.total
	return nil
}

// discard drops the token so the next attempt starts fresh
func (a *attempt) discard(logger log.FieldLogger) {
	a.token.Reset()
	if err := RemoveToken(a.item.Path); err != nil {
		logger.WithError(err).Warn("failed to remove resume token")
	}
}

func (e *Engine) saveToken(a *attempt, logger log.FieldLogger) {
	if a.received <= 0 {
		return
	}
	if err := a.file.Sync(); err != nil {
		logger.WithError(err).Warn("failed to sync destination")
	}
	now := e.now()
	if err := a.token.Save(now); err != nil {
		logger.WithError(err).Warn("failed to save resume token")
		return
	}
	a.lastSave = now
}

// complete verifies the destination and commits the item
func (e *Engine) complete(a *attempt, logger log.FieldLogger) error {
	if err := a.file.Sync(); err != nil {
		return fmt.Errorf("syncing destination: %w", err)
	}
	size, err := platform.FileSize(a.item.Path)
	if err != nil {
		return fmt.Errorf("verifying destination: %w", err)
	}
	if size != a.total {
		e.saveToken(a, logger)
		return fmt.Errorf("%w: item %d: %d bytes on disk, expected %d", model.ErrTransferIncomplete, a.item.Ordinal, size, a.total)
	}

	err = e.updateItem(a.item.Ordinal, func(it *model.Item) {
		it.Completed = true
		it.TotalBytes = a.total
	})
	if err != nil {
		return err
	}

	if err := RemoveToken(a.item.Path); err != nil {
		logger.WithError(err).Warn("failed to remove resume token")
	}
	logger.WithField("bytes", a.total).Info("transfer completed")
	e.events.Publish(progress.Done(a.item.Ordinal, a.total))
	return nil
}

// parseContentRange parses "bytes start-end/total" or "bytes */total". An
// unknown total is returned as -1.
func parseContentRange(value string) (start, total int64, err error) {
	ranges, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrContentRange, value)
	}

	rangePart, totalPart, ok := strings.Cut(ranges, "/")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrContentRange, value)
	}

	total = -1
	if totalPart != "*" {
		if total, err = strconv.ParseInt(totalPart, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("%w: %q", ErrContentRange, value)
		}
	}

	if rangePart == "*" {
		return 0, total, nil
	}
	startPart, _, ok := strings.Cut(rangePart, "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrContentRange, value)
	}
	if start, err = strconv.ParseInt(startPart, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrContentRange, value)
	}
	return start, total, nil
}
