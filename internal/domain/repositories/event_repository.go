package repositories

import (
	"context"
	"time"

	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
)

// EventRepository is the read-only view of the search event log.
type EventRepository interface {
	// ListRecentEvents returns searches created at or after since.
	ListRecentEvents(ctx context.Context, since time.Time) ([]*entities.SearchEvent, error)

	// ListRecentSavedSearches returns saved searches created at or after since.
	ListRecentSavedSearches(ctx context.Context, since time.Time) ([]*entities.SavedSearch, error)
}
