package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNewCatalog(t *testing.T) {
	catalog := NewCatalog("https://example.com/show")

	if catalog.IndexURL() != "https://example.com/show" {
		t.Errorf("Expected index URL to be 'https://example.com/show', got '%s'", catalog.IndexURL())
	}

	if catalog.Len() != 0 {
		t.Errorf("Expected empty catalog, got %d items", catalog.Len())
	}

	if catalog.UpdatedAt().IsZero() {
		t.Error("Expected UpdatedAt to be set")
	}
}

func TestCatalog_AddKeepsOrdinalOrder(t *testing.T) {
	catalog := NewCatalog("")

	for _, ordinal := range []int{3, 1, 2} {
		if err := catalog.Add(Item{Ordinal: ordinal}); err != nil {
			t.Fatalf("Add(%d) failed: %v", ordinal, err)
		}
	}

	items := catalog.All()
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}
	for i, item := range items {
		if item.Ordinal != i+1 {
			t.Errorf("Expected item %d to have ordinal %d, got %d", i, i+1, item.Ordinal)
		}
	}
}

func TestCatalog_AddDuplicate(t *testing.T) {
	catalog := NewCatalog("")

	if err := catalog.Add(Item{Ordinal: 1, Name: "first"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	err := catalog.Add(Item{Ordinal: 1, Name: "second"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate, got %v", err)
	}

	item, _ := catalog.Get(1)
	if item.Name != "first" {
		t.Errorf("Expected original item to be kept, got '%s'", item.Name)
	}
}

func TestCatalog_GetReturnsCopy(t *testing.T) {
	catalog := NewCatalog("")
	_ = catalog.Add(Item{Ordinal: 1, Name: "original"})

	item, exists := catalog.Get(1)
	if !exists {
		t.Fatal("Expected item to exist")
	}
	item.Name = "changed"

	again, _ := catalog.Get(1)
	if again.Name != "original" {
		t.Errorf("Expected catalog item to be unchanged, got '%s'", again.Name)
	}

	if _, exists := catalog.Get(42); exists {
		t.Error("Expected item 42 to not exist")
	}
}

func TestCatalog_Update(t *testing.T) {
	catalog := NewCatalog("")
	_ = catalog.Add(Item{Ordinal: 7})
	before := catalog.UpdatedAt()

	time.Sleep(time.Millisecond)
	err := catalog.Update(7, func(item *Item) {
		item.TransferURL = "https://cdn.example.com/7.mp4"
		item.Ordinal = 99
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	item, exists := catalog.Get(7)
	if !exists {
		t.Fatal("Expected item to keep its ordinal")
	}
	if item.TransferURL != "https://cdn.example.com/7.mp4" {
		t.Errorf("Expected transfer URL to be updated, got '%s'", item.TransferURL)
	}
	if !catalog.UpdatedAt().After(before) {
		t.Error("Expected UpdatedAt to advance on update")
	}

	err = catalog.Update(8, func(item *Item) {})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing ordinal, got %v", err)
	}
}

func TestCatalog_Merge(t *testing.T) {
	catalog := NewCatalog("")
	_ = catalog.Add(Item{Ordinal: 1, Name: "one", Completed: true, TotalBytes: 10})

	added := catalog.Merge([]Item{
		{Ordinal: 1, Name: "one (rediscovered)"},
		{Ordinal: 2, Name: "two"},
	})
	if added != 1 {
		t.Errorf("Expected 1 item added, got %d", added)
	}

	first, _ := catalog.Get(1)
	if first.Name != "one" || !first.Completed || first.TotalBytes != 10 {
		t.Errorf("Expected known item to be untouched, got %+v", first)
	}

	if _, exists := catalog.Get(2); !exists {
		t.Error("Expected new item to be merged")
	}
}

func TestCatalog_PendingAndProgress(t *testing.T) {
	catalog := NewCatalog("")
	_ = catalog.Add(Item{Ordinal: 1, Completed: true})
	_ = catalog.Add(Item{Ordinal: 2})
	_ = catalog.Add(Item{Ordinal: 3, Ignored: true})
	_ = catalog.Add(Item{Ordinal: 4})

	pending := catalog.Pending()
	if len(pending) != 2 || pending[0].Ordinal != 2 || pending[1].Ordinal != 4 {
		t.Errorf("Expected pending items [2 4], got %+v", pending)
	}

	if progress := catalog.Progress(); progress < 0.333 || progress > 0.334 {
		t.Errorf("Expected progress 1/3, got %f", progress)
	}

	if NewCatalog("").Progress() != 0 {
		t.Error("Expected empty catalog progress to be 0")
	}
}

func TestCatalog_JSONRoundTrip(t *testing.T) {
	catalog := NewCatalog("https://example.com/show")
	_ = catalog.Add(Item{Ordinal: 2, Name: "two", Category: CategoryFiller})
	_ = catalog.Add(Item{Ordinal: 1, Name: "one", Completed: true, TotalBytes: 1000, Path: "/tmp/1.mp4"})

	data, err := json.Marshal(catalog)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Catalog
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.IndexURL() != catalog.IndexURL() {
		t.Errorf("Expected index URL '%s', got '%s'", catalog.IndexURL(), decoded.IndexURL())
	}
	if !decoded.UpdatedAt().Equal(catalog.UpdatedAt()) {
		t.Errorf("Expected UpdatedAt %v, got %v", catalog.UpdatedAt(), decoded.UpdatedAt())
	}

	want, got := catalog.All(), decoded.All()
	if len(want) != len(got) {
		t.Fatalf("Expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if want[i] != got[i] {
			t.Errorf("Item %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestCatalog_UnmarshalRejectsDuplicates(t *testing.T) {
	data := []byte(`{"index_url":"x","items":[{"ordinal":1},{"ordinal":1}]}`)

	var catalog Catalog
	err := json.Unmarshal(data, &catalog)
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
}
