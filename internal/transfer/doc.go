package transfer

// Package transfer downloads one item at a time over HTTP with byte-range
// resume. Progress of an unfinished file is kept in a JSON resume token next
// to the destination until the file is complete.
