// Package db
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"eventcrawler/packages/domain"
)

// ErrDuplicate is returned when an insert raced with another writer on the
// external identity unique index.
var ErrDuplicate = errors.New("event already exists")

// EventRow is the slim projection of a stored event used for deduplication
// checks and the status-repair pass.
type EventRow struct {
	ID          int64
	Name        string
	ExternalID  string
	ExternalURL string
	Status      domain.EventStatus
	StartAt     time.Time
	EndAt       time.Time
}

type Storage struct {
	DB *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Storage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return &Storage{DB: pool}, nil
}

func (s *Storage) Close() {
	s.DB.Close()
}

// FindExisting looks up a stored event by external id or external URL; either
// match means the event was already imported. Returns (nil, nil) when absent.
func (s *Storage) FindExisting(ctx context.Context, externalID, externalURL string) (*EventRow, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, name, COALESCE(external_id, ''), COALESCE(external_url, ''), status, start_at, end_at
		FROM events
		WHERE (external_id = $1 AND $1 <> '') OR (external_url = $2 AND $2 <> '')
		LIMIT 1`, externalID, externalURL)

	var r EventRow
	err := row.Scan(&r.ID, &r.Name, &r.ExternalID, &r.ExternalURL, &r.Status, &r.StartAt, &r.EndAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query existing event: %w", err)
	}
	return &r, nil
}

// Insert writes one imported record. Callers pre-check with FindExisting;
// the unique index on external identity backs that check up under races.
func (s *Storage) Insert(ctx context.Context, rec *domain.ImportedEventRecord) error {
	rawData, err := json.Marshal(rec.RawData)
	if err != nil {
		slog.Warn("Could not marshal raw data, inserting without it", "event", rec.Name, "error", err)
		rawData = []byte("{}")
	}

	categories := make([]string, 0, len(rec.Categories))
	for _, c := range rec.Categories {
		categories = append(categories, string(c))
	}

	_, err = s.DB.Exec(ctx, `
		INSERT INTO events (
			event_type, name, description, images, price, currency,
			start_at, end_at, status, location_type, city, address,
			latitude, longitude, categories, tags, origin,
			external_id, external_url, attendee_count, capacity,
			is_real_event, raw_data, imported_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, $19, $20, $21,
			$22, $23, $24
		)`,
		string(rec.EventType), rec.Name, rec.Description, rec.Images, rec.Price, rec.Currency,
		rec.StartAt, rec.EndAt, string(rec.Status), string(rec.LocationType), rec.City, rec.Address,
		rec.Latitude, rec.Longitude, categories, rec.Tags, rec.Origin,
		rec.ExternalID, rec.ExternalURL, rec.AttendeeCount, rec.Capacity,
		rec.IsRealEvent, rawData, rec.ImportedAt,
	)
	if err != nil {
		// 23505: unique violation, two writers raced on the same event.
		if strings.Contains(err.Error(), "23505") {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// ListUnfinished returns events whose stored status is not yet COMPLETED, for
// the periodic status-repair pass.
func (s *Storage) ListUnfinished(ctx context.Context) ([]EventRow, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, COALESCE(external_id, ''), COALESCE(external_url, ''), status, start_at, end_at
		FROM events
		WHERE status <> $1 AND is_real_event = false`, string(domain.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("failed to query unfinished events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		if err := rows.Scan(&r.ID, &r.Name, &r.ExternalID, &r.ExternalURL, &r.Status, &r.StartAt, &r.EndAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateStatus writes back a recomputed event status.
func (s *Storage) UpdateStatus(ctx context.Context, id int64, status domain.EventStatus) error {
	_, err := s.DB.Exec(ctx, `UPDATE events SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update status for event %d: %w", id, err)
	}
	return nil
}
