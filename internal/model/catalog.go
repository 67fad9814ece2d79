package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Catalog is the ordered set of items discovered from one index
type Catalog struct {
	mu        sync.RWMutex
	indexURL  string
	items     map[int]*Item
	updatedAt time.Time
}

// NewCatalog creates an empty catalog for the given index locator
func NewCatalog(indexURL string) *Catalog {
	return &Catalog{
		indexURL:  indexURL,
		items:     make(map[int]*Item),
		updatedAt: time.Now(),
	}
}

// IndexURL returns the index locator the catalog was discovered from
func (c *Catalog) IndexURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexURL
}

// SetIndexURL replaces the index locator
func (c *Catalog) SetIndexURL(indexURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexURL = indexURL
	c.updatedAt = time.Now()
}

// UpdatedAt returns the time of the last mutation
func (c *Catalog) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Len returns the number of items
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Add adds an item to the catalog
func (c *Catalog) Add(item Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[item.Ordinal]; exists {
		return fmt.Errorf("adding item %d: %w", item.Ordinal, ErrDuplicate)
	}

	c.items[item.Ordinal] = &item
	c.updatedAt = time.Now()
	return nil
}

// Get returns a copy of the item with the given ordinal
func (c *Catalog) Get(ordinal int) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[ordinal]
	if !exists {
		return Item{}, false
	}
	return *item, true
}

// All returns copies of every item ordered by ordinal
func (c *Catalog) All() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedLocked()
}

// Update applies mutation to the item with the given ordinal
func (c *Catalog) Update(ordinal int, mutation func(*Item)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[ordinal]
	if !exists {
		return fmt.Errorf("updating item %d: %w", ordinal, ErrNotFound)
	}

	mutation(item)
	// the ordinal is the map key and must not move
	item.Ordinal = ordinal
	c.updatedAt = time.Now()
	return nil
}

// Merge adds the items whose ordinals are unknown and leaves known ones alone.
// It returns the number of items added.
func (c *Catalog) Merge(items []Item) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for i := range items {
		if _, exists := c.items[items[i].Ordinal]; exists {
			continue
		}
		item := items[i]
		c.items[item.Ordinal] = &item
		added++
	}
	if added > 0 {
		c.updatedAt = time.Now()
	}
	return added
}

// Pending returns the items that still need a transfer
func (c *Catalog) Pending() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var pending []Item
	for _, item := range c.sortedLocked() {
		if !item.Completed && !item.Ignored {
			pending = append(pending, item)
		}
	}
	return pending
}

// Progress returns the fraction of non-ignored items that are completed
func (c *Catalog) Progress() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total, completed := 0, 0
	for _, item := range c.items {
		if item.Ignored {
			continue
		}
		total++
		if item.Completed {
			completed++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total)
}

func (c *Catalog) sortedLocked() []Item {
	out := make([]Item, 0, len(c.items))
	for _, item := range c.items {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

type catalogDocument struct {
	IndexURL  string    `json:"index_url"`
	UpdatedAt time.Time `json:"updated_at"`
	Items     []Item    `json:"items"`
}

// MarshalJSON encodes the catalog with items in ordinal order
func (c *Catalog) MarshalJSON() ([]byte, error) {
	c.mu.RLock()
	doc := catalogDocument{
		IndexURL:  c.indexURL,
		UpdatedAt: c.updatedAt,
		Items:     c.sortedLocked(),
	}
	c.mu.RUnlock()
	return json.Marshal(&doc)
}

// UnmarshalJSON decodes a catalog, rejecting duplicate ordinals
func (c *Catalog) UnmarshalJSON(data []byte) error {
	var doc catalogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	items := make(map[int]*Item, len(doc.Items))
	for i := range doc.Items {
		item := doc.Items[i]
		if _, exists := items[item.Ordinal]; exists {
			return fmt.Errorf("item %d: %w", item.Ordinal, ErrDuplicate)
		}
		items[item.Ordinal] = &item
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexURL = doc.IndexURL
	c.updatedAt = doc.UpdatedAt
	c.items = items
	return nil
}
