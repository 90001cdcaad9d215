package api

import (
	"github.com/starford/aislemap/internal/journal"
	"github.com/starford/aislemap/internal/models"
)

// MarkersResponse wraps a marker listing.
type MarkersResponse struct {
	Markers []models.MarkerRecord `json:"markers" validate:"required"`
	ShowAll bool                  `json:"show_all" example:"false"`
}

// SelectionResponse wraps the grouped selection.
type SelectionResponse struct {
	Items []models.GroupedEntry `json:"items" validate:"required"`
}

// MarkerImageResponse is the image shown when a marker is pressed.
type MarkerImageResponse struct {
	MarkerID string `json:"marker_id" example:"m-dairy-1" validate:"required"`
	ImageURL string `json:"image_url" example:"https://cdn.example.com/milk.png" validate:"required"`
}

// ShowAllRequest is the request body for PUT /view/show-all.
type ShowAllRequest struct {
	ShowAll *bool `json:"show_all" example:"true" validate:"required"`
}

// RemovalResponse describes a removal that was accepted but not awaited.
type RemovalResponse struct {
	Token    string `json:"token" example:"1f0c..." validate:"required"`
	RecordID string `json:"record_id" example:"item-1" validate:"required"`
	State    string `json:"state" example:"pending" validate:"required"`
}

// RemovalsResponse wraps journal entries.
type RemovalsResponse struct {
	Removals []journal.Entry `json:"removals" validate:"required"`
}
