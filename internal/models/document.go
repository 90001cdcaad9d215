package models

import "time"

// DocumentMeta is a lightweight description of one stored feed document.
type DocumentMeta struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	File       string    `json:"file"`
	Size       int64     `json:"size"`
	UpdatedAt  time.Time `json:"updated_at"`
}
