// Package mapservice coordinates the map session, removals, the document
// store and the removal journal for the delivery layers.
package mapservice

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"

	"github.com/starford/aislemap/internal/apperr"
	"github.com/starford/aislemap/internal/journal"
	"github.com/starford/aislemap/internal/mapview"
	"github.com/starford/aislemap/internal/models"
	"github.com/starford/aislemap/internal/parser"
	"github.com/starford/aislemap/internal/storage"
)

// StoreDeleter sends delete intents for selection records to a document store.
type StoreDeleter struct {
	Store storage.Provider
}

// Delete removes the selection document with id.
func (d StoreDeleter) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.Store.Delete(models.CollectionSelectedItems, id)
}

// AddItemRequest is the input of the add-to-selection action.
type AddItemRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Validate validates the request.
func (r *AddItemRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Category = strings.TrimSpace(r.Category)
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Category, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.ImageURL, is.URL),
	)
}

// Service is the entry point used by the API and MCP layers.
type Service struct {
	session *mapview.Session
	remover *mapview.Remover
	store   storage.Provider
	journal *journal.DB
}

// NewService creates a new map service. j may be nil.
func NewService(session *mapview.Session, remover *mapview.Remover, store storage.Provider, j *journal.DB) *Service {
	return &Service{session: session, remover: remover, store: store, journal: j}
}

// View returns the current derived view.
func (s *Service) View(_ context.Context) models.View {
	return s.session.View()
}

// AllMarkers returns every marker regardless of the show-all flag.
func (s *Service) AllMarkers(_ context.Context) []models.MarkerRecord {
	return s.session.Markers().Snapshot()
}

// Accepted returns the accepted categories of the session.
func (s *Service) Accepted() []string {
	return s.session.Accepted()
}

// SetShowAll sets the show-all flag and returns the resulting view.
func (s *Service) SetShowAll(_ context.Context, v bool) models.View {
	s.session.SetShowAll(v)
	return s.session.View()
}

// ToggleShowAll flips the show-all flag and returns the resulting view.
func (s *Service) ToggleShowAll(_ context.Context) models.View {
	s.session.ToggleShowAll()
	return s.session.View()
}

// MarkerImage returns the image shown when a marker is pressed.
func (s *Service) MarkerImage(_ context.Context, markerID string) (string, error) {
	url, ok := s.session.ImageFor(markerID)
	if !ok {
		return "", apperr.ErrNotFound
	}
	return url, nil
}

// AddItem writes a new selection document. The record reaches the view
// through the change feed, like any other external change.
func (s *Service) AddItem(_ context.Context, req AddItemRequest) (*models.SelectionRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	payload := parser.Payload{
		"name":     req.Name,
		"category": req.Category,
	}
	if req.ImageURL != "" {
		payload["imageUrl"] = req.ImageURL
	}
	data, err := parser.Encode(payload)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	if err := s.store.Write(models.CollectionSelectedItems, id, data); err != nil {
		return nil, fmt.Errorf("mapservice: add item: %w", err)
	}
	return &models.SelectionRecord{
		ID:       id,
		Name:     req.Name,
		Category: req.Category,
		Quantity: 1,
		ImageURL: req.ImageURL,
	}, nil
}

// RemoveItem starts (or joins) the removal of a selection record.
func (s *Service) RemoveItem(ctx context.Context, id string) (*mapview.Pending, error) {
	return s.remover.Remove(ctx, id)
}

// Removals returns the latest journal entries, newest first.
func (s *Service) Removals(_ context.Context, limit int) ([]journal.Entry, error) {
	if s.journal == nil {
		return []journal.Entry{}, nil
	}
	return s.journal.Recent(limit)
}
