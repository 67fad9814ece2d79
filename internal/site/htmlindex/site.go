package htmlindex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ytget/episode-downloader/internal/model"
)

// DefaultItemSelector matches the links of an index page
const DefaultItemSelector = "a[href]"

// MediaExtensions are the link suffixes treated as direct media
var MediaExtensions = []string{".mp4", ".m4v", ".mkv", ".webm", ".mov", ".avi"}

var (
	episodeNumber = regexp.MustCompile(`(?i)\b(?:episode|ep\.?|e)\s*#?\s*(\d+)`)
	anyNumber     = regexp.MustCompile(`\d+`)
)

// Options configures a Site
type Options struct {
	// ItemSelector selects one link per item on the index page
	ItemSelector string
	// RowSelector selects the ancestor whose text carries the category label
	RowSelector string
	Client      *http.Client
	UserAgent   string
}

// Site discovers items from plain HTML index pages and resolves each item
// from its own page.
type Site struct {
	itemSelector string
	rowSelector  string
	client       *http.Client
	userAgent    string
}

// New creates a Site
func New(opts Options) *Site {
	if opts.ItemSelector == "" {
		opts.ItemSelector = DefaultItemSelector
	}
	if opts.RowSelector == "" {
		opts.RowSelector = "tr, li"
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return &Site{
		itemSelector: opts.ItemSelector,
		rowSelector:  opts.RowSelector,
		client:       opts.Client,
		userAgent:    opts.UserAgent,
	}
}

// Discover lists the items linked from indexURL ordered by ordinal. Links
// without a number are skipped; the first link for an ordinal wins.
func (s *Site) Discover(ctx context.Context, indexURL string) ([]model.Item, error) {
	base, doc, err := s.fetch(ctx, indexURL)
	if err != nil {
		return nil, fmt.Errorf("discovering %s: %w", indexURL, err)
	}

	seen := map[int]struct{}{}
	var items []model.Item
	doc.Find(s.itemSelector).Each(func(i int, a *goquery.Selection) {
		href, exists := a.Attr("href")
		if !exists {
			return
		}
		target, err := base.Parse(href)
		if err != nil {
			return
		}

		text := strings.Join(strings.Fields(a.Text()), " ")
		ordinal := ParseOrdinal(text)
		if ordinal <= 0 {
			file := path.Base(target.Path)
			ordinal = ParseOrdinal(strings.TrimSuffix(file, path.Ext(file)))
		}
		if ordinal <= 0 {
			return
		}
		if _, dup := seen[ordinal]; dup {
			return
		}
		seen[ordinal] = struct{}{}

		label := a.AttrOr("data-category", "")
		if label == "" {
			label = a.Closest(s.rowSelector).Text()
		}
		target.Fragment = ""
		items = append(items, model.Item{
			Ordinal:   ordinal,
			Name:      text,
			SourceURL: target.String(),
			Category:  model.ParseCategory(label),
		})
	})

	sort.Slice(items, func(i, j int) bool { return items[i].Ordinal < items[j].Ordinal })
	return items, nil
}

// Resolve returns the byte source of item. A source locator that already
// points at media is returned as is; otherwise the item page is searched in
// order for video sources, download links and links to media files.
func (s *Site) Resolve(ctx context.Context, item model.Item) (string, error) {
	if item.SourceURL == "" {
		return "", fmt.Errorf("%w: item %d has no source locator", model.ErrResolutionFailed, item.Ordinal)
	}
	if IsMediaURL(item.SourceURL) {
		return item.SourceURL, nil
	}

	base, doc, err := s.fetch(ctx, item.SourceURL)
	if err != nil {
		return "", fmt.Errorf("%w: item %d: %w", model.ErrResolutionFailed, item.Ordinal, err)
	}

	candidates := []struct {
		selector string
		attr     string
		media    bool
	}{
		{"video source[src]", "src", false},
		{"video[src]", "src", false},
		{"a[download][href]", "href", false},
		{"a[href]", "href", true},
	}
	for _, c := range candidates {
		var found string
		doc.Find(c.selector).EachWithBreak(func(i int, sel *goquery.Selection) bool {
			ref := strings.TrimSpace(sel.AttrOr(c.attr, ""))
			if ref == "" {
				return true
			}
			target, err := base.Parse(ref)
			if err != nil {
				return true
			}
			if c.media && !IsMediaURL(target.String()) {
				return true
			}
			found = target.String()
			return false
		})
		if found != "" {
			return found, nil
		}
	}

	return "", fmt.Errorf("%w: item %d: no media found at %s", model.ErrResolutionFailed, item.Ordinal, item.SourceURL)
}

func (s *Site) fetch(ctx context.Context, locator string) (*url.URL, *goquery.Document, error) {
	base, err := url.Parse(locator)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing locator: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, nil, err
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	rsp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching %s: %w", locator, err)
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		return nil, nil, &model.ServerError{URL: locator, StatusCode: rsp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(rsp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing HTML document: %w", err)
	}
	return base, doc, nil
}

// ParseOrdinal extracts an episode number from text: the number after an
// episode marker if there is one, otherwise the last number. It returns 0
// when text has no number.
func ParseOrdinal(text string) int {
	if m := episodeNumber.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	numbers := anyNumber.FindAllString(text, -1)
	if len(numbers) == 0 {
		return 0
	}
	n, err := strconv.Atoi(numbers[len(numbers)-1])
	if err != nil {
		return 0
	}
	return n
}

// IsMediaURL reports whether locator's path ends in a media extension
func IsMediaURL(locator string) bool {
	u, err := url.Parse(locator)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, m := range MediaExtensions {
		if ext == m {
			return true
		}
	}
	return false
}
