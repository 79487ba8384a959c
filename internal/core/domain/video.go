package domain

import "time"

// VideoFile is one uploadable file discovered in a stream's output
// directory.
type VideoFile struct {
	Path       string
	Name       string
	StreamName string
	SizeBytes  int64
	ModifiedAt time.Time
}
