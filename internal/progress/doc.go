package progress

// Package progress carries per-item progress events from the transfer engine
// to any number of subscribers (CLI printer, logger, fyne bindings).
