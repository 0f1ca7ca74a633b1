package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	"github.com/visa2any/fly2any-sub046/internal/domain/repositories"
	"github.com/visa2any/fly2any-sub046/internal/infrastructure/clients/postgres"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
)

const (
	searchEventsTable  = "search_events"
	savedSearchesTable = "saved_searches"
)

var searchColumns = []interface{}{
	"id", "origin", "destination", "depart_date", "return_date", "user_id", "created_at",
}

// SearchEventAdapter reads the search and saved-search tables.
type SearchEventAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewSearchEventAdapter creates a new search event adapter
func NewSearchEventAdapter(client *postgres.Client) repositories.EventRepository {
	return &SearchEventAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// ListRecentEvents returns searches with created_at >= since, oldest first.
func (a *SearchEventAdapter) ListRecentEvents(ctx context.Context, since time.Time) ([]*entities.SearchEvent, error) {
	query, args, err := a.recentQuery(searchEventsTable, since)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build search events query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("failed to list search events", err)
	}
	defer rows.Close()

	var events []*entities.SearchEvent
	for rows.Next() {
		e := &entities.SearchEvent{}
		var returnDate sql.NullTime
		var userID sql.NullString
		if err := rows.Scan(&e.ID, &e.Origin, &e.Destination, &e.DepartDate, &returnDate, &userID, &e.CreatedAt); err != nil {
			return nil, apperrors.NewInternalError("failed to scan search event", err)
		}
		if returnDate.Valid {
			e.ReturnDate = &returnDate.Time
		}
		if userID.Valid {
			e.UserID = &userID.String
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("failed to iterate search events", err)
	}

	return events, nil
}

// ListRecentSavedSearches returns saved searches with created_at >= since, oldest first.
func (a *SearchEventAdapter) ListRecentSavedSearches(ctx context.Context, since time.Time) ([]*entities.SavedSearch, error) {
	query, args, err := a.recentQuery(savedSearchesTable, since)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build saved searches query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("failed to list saved searches", err)
	}
	defer rows.Close()

	var searches []*entities.SavedSearch
	for rows.Next() {
		s := &entities.SavedSearch{}
		var returnDate sql.NullTime
		if err := rows.Scan(&s.ID, &s.Origin, &s.Destination, &s.DepartDate, &returnDate, &s.UserID, &s.CreatedAt); err != nil {
			return nil, apperrors.NewInternalError("failed to scan saved search", err)
		}
		if returnDate.Valid {
			s.ReturnDate = &returnDate.Time
		}
		searches = append(searches, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("failed to iterate saved searches", err)
	}

	return searches, nil
}

func (a *SearchEventAdapter) recentQuery(table string, since time.Time) (string, []interface{}, error) {
	return a.db.From(table).
		Prepared(true).
		Select(searchColumns...).
		Where(goqu.C("created_at").Gte(since)).
		Order(goqu.I("created_at").Asc()).
		ToSQL()
}
