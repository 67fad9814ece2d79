package download

// Package download runs a series: it loads or creates the checkpoint of a
// download directory, discovers items, and drives every item through the
// retry controller and the transfer engine in ordinal order while progress
// is published on a bus.
