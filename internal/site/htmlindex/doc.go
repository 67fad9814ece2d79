package htmlindex

// Package htmlindex is a site for plain HTML index pages: one link per
// episode on the index, and a page per episode holding a video element or a
// link to the media file.
