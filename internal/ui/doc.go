package ui

// Package ui contains the Fyne status window of the application. It lists the
// catalog with one progress bar per item, bound to a progress.BindingSink, and
// starts and stops catalog runs of the download service.
