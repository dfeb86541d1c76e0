package models

import "time"

// Download is a book file saved on this device.
type Download struct {
	BookID       string
	LocalPath    string
	Size         int64
	DownloadedAt time.Time
}
