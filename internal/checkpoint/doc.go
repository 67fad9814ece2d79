package checkpoint

// Package checkpoint stores the item catalog of a download directory in a
// single JSON file and repairs completion flags that disagree with the disk.
