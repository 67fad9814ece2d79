package site

// Package site defines the collaborators that enumerate items from an index
// and resolve each item to a byte source, plus a host dispatch table.
