package hls

import "errors"

// ErrNoSegments is returned by Parse when the playlist has zero segments.
var ErrNoSegments = errors.New("hls: playlist has no segments")

// ErrInvalidKey is returned by Parse when an #EXT-X-KEY line is malformed.
var ErrInvalidKey = errors.New("hls: invalid key record")
