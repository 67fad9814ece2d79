package model

// Package model defines the domain data structures shared by the downloader:
// catalog items, the catalog itself, item states and the error taxonomy.
// Items are plain values; the Catalog owns them and hands out copies.
