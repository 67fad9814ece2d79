package platform

// Package platform contains OS integration: directory and file helpers,
// free-space checks, default download locations and opening the download
// directory in the system file manager.
