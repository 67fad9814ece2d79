package model

import (
	"strconv"
	"strings"
)

// Category classifies an item the way the index page labels it
type Category string

const (
	CategoryNormal Category = "normal"
	CategoryFiller Category = "filler"
)

// ParseCategory maps a free-form label from an index page to a Category
func ParseCategory(label string) Category {
	if strings.Contains(strings.ToLower(label), string(CategoryFiller)) {
		return CategoryFiller
	}
	return CategoryNormal
}

// Letter returns the one-letter marker used in listings
func (c Category) Letter() string {
	switch c {
	case CategoryFiller:
		return "F"
	case CategoryNormal, "":
		return " "
	default:
		return strings.ToUpper(string(c[:1]))
	}
}

// Item is one downloadable episode
type Item struct {
	Ordinal     int      `json:"ordinal"`
	Name        string   `json:"name"`
	SourceURL   string   `json:"source_url,omitempty"`   // page the item was discovered at
	TransferURL string   `json:"transfer_url,omitempty"` // concrete byte source, empty until resolved
	Path        string   `json:"path,omitempty"`         // destination file, empty until assigned
	Completed   bool     `json:"completed"`
	Ignored     bool     `json:"ignored"`
	Category    Category `json:"category"`
	TotalBytes  int64    `json:"total_bytes"` // 0 until known
}

// GetDisplayName returns name, or the file name of Path, or the ordinal
func (it *Item) GetDisplayName() string {
	if it.Name != "" {
		return it.Name
	}

	if it.Path != "" {
		parts := strings.FieldsFunc(it.Path, func(r rune) bool {
			return r == '/' || r == '\\'
		})
		if len(parts) > 0 {
			filename := parts[len(parts)-1]
			if idx := strings.LastIndex(filename, "."); idx > 0 {
				filename = filename[:idx]
			}
			return filename
		}
	}

	return "#" + strconv.Itoa(it.Ordinal)
}

// IsResolved reports whether a transfer locator is known
func (it *Item) IsResolved() bool {
	return it.TransferURL != ""
}
