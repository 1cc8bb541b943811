package storage

import "time"

// ListItem is the projection returned by List. Content is omitted so that
// listing a large folder never drags file payloads across the wire.
type ListItem struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	IsFolder   bool      `json:"isFolder"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// FileContent is the projection returned by Read.
type FileContent struct {
	Name    string  `json:"name"`
	Content *string `json:"content"`
}
