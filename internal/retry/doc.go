package retry

// Package retry runs transfer attempts for one item until it completes, is
// filtered out, or the attempt budget for the run is spent.
