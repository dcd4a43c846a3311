package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ContactFilter narrows ListContacts. Zero value lists everything.
type ContactFilter struct {
	LabelID      string
	UpdatedSince time.Time
}

func (s *PostgresStore) ListContacts(ctx context.Context, operator string, filter ContactFilter) ([]Contact, error) {
	var since any
	if !filter.UpdatedSince.IsZero() {
		since = filter.UpdatedSince
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT remote_id, COALESCE(local_id, ''), name, phone, tags::text, notes, created_at, updated_at, last_interaction_at
		FROM contacts
		WHERE operator=$1
		  AND ($2 = '' OR tags ? $2)
		  AND ($3::timestamptz IS NULL OR updated_at >= $3)
		ORDER BY last_interaction_at DESC
	`, operator, filter.LabelID, since)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	items := make([]Contact, 0)
	for rows.Next() {
		var (
			item  Contact
			phone sql.NullString
			tags  string
		)
		if err := rows.Scan(
			&item.RemoteID,
			&item.ID,
			&item.Name,
			&phone,
			&tags,
			&item.Notes,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.LastInteractionAt,
		); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		if phone.Valid && phone.String != "" {
			value := phone.String
			item.Phone = &value
		}
		if item.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return items, nil
}

// InsertContact stores a contact the remote side has not seen yet and
// returns the remote record id.
func (s *PostgresStore) InsertContact(ctx context.Context, operator string, contact Contact) (string, error) {
	tags, err := encodeTags(contact.Tags)
	if err != nil {
		return "", err
	}
	var remoteID string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO contacts (operator, local_id, name, phone, tags, notes, created_at, updated_at, last_interaction_at)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), $5::jsonb, $6, $7, $8, $9)
		RETURNING remote_id
	`, operator, contact.ID, contact.Name, contact.PhoneValue(), tags, contact.Notes,
		nonZero(contact.CreatedAt), nonZero(contact.UpdatedAt), nonZero(contact.LastInteractionAt),
	).Scan(&remoteID)
	if err != nil {
		return "", fmt.Errorf("insert contact: %w", err)
	}
	return remoteID, nil
}

func (s *PostgresStore) UpdateContact(ctx context.Context, operator string, contact Contact) error {
	if contact.RemoteID == "" {
		return fmt.Errorf("update contact: missing remote id")
	}
	tags, err := encodeTags(contact.Tags)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE contacts
		SET local_id=COALESCE(NULLIF($3, ''), local_id), name=$4, phone=NULLIF($5, ''), tags=$6::jsonb, notes=$7,
			updated_at=$8, last_interaction_at=$9
		WHERE operator=$1 AND remote_id=$2
	`, operator, contact.RemoteID, contact.ID, contact.Name, contact.PhoneValue(), tags, contact.Notes,
		nonZero(contact.UpdatedAt), nonZero(contact.LastInteractionAt))
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contact rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update contact %s: %w", contact.RemoteID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListLabels(ctx context.Context, operator string) ([]Label, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, color, source, COALESCE(original_id, ''), usage_count, created_at, deleted_at IS NOT NULL
		FROM labels
		WHERE operator=$1
		ORDER BY created_at ASC
	`, operator)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()

	items := make([]Label, 0)
	for rows.Next() {
		var (
			item   Label
			source string
		)
		if err := rows.Scan(&item.ID, &item.Name, &item.Color, &source, &item.OriginalID, &item.UsageCount, &item.CreatedAt, &item.Deleted); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		item.Source = Source(source)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpsertLabel(ctx context.Context, operator string, label Label) error {
	var deletedAt any
	if label.Deleted {
		deletedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO labels (operator, id, name, color, source, original_id, usage_count, created_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
		ON CONFLICT (operator, id) DO UPDATE
		SET name=EXCLUDED.name, color=EXCLUDED.color, usage_count=GREATEST(labels.usage_count, EXCLUDED.usage_count),
			deleted_at=EXCLUDED.deleted_at
	`, operator, label.ID, label.Name, label.Color, string(label.Source), label.OriginalID, label.UsageCount,
		nonZero(label.CreatedAt), deletedAt)
	if err != nil {
		return fmt.Errorf("upsert label: %w", err)
	}
	return nil
}

// DeleteLabel soft-deletes: the row stays for history.
func (s *PostgresStore) DeleteLabel(ctx context.Context, operator, labelID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE labels SET deleted_at=NOW() WHERE operator=$1 AND id=$2 AND deleted_at IS NULL
	`, operator, labelID)
	if err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	return nil
}

// SearchContacts is the fallback search path when no search index is up.
func (s *PostgresStore) SearchContacts(ctx context.Context, operator, text string, limit int) ([]Contact, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + text + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT remote_id, COALESCE(local_id, ''), name, phone, tags::text, notes, created_at, updated_at, last_interaction_at
		FROM contacts
		WHERE operator=$1 AND (name ILIKE $2 OR COALESCE(phone, '') ILIKE $2 OR notes ILIKE $2)
		ORDER BY last_interaction_at DESC
		LIMIT $3
	`, operator, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	defer rows.Close()

	items := make([]Contact, 0)
	for rows.Next() {
		var (
			item  Contact
			phone sql.NullString
			tags  string
		)
		if err := rows.Scan(&item.RemoteID, &item.ID, &item.Name, &phone, &tags, &item.Notes, &item.CreatedAt, &item.UpdatedAt, &item.LastInteractionAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		if phone.Valid && phone.String != "" {
			value := phone.String
			item.Phone = &value
		}
		if item.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return items, nil
}

// decodeTags reads the tags column. An empty or JSON null value decodes as an
// empty list.
func decodeTags(raw string) ([]string, error) {
	tags := []string{}
	if raw == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decode contact tags: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(encoded), nil
}

func nonZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
