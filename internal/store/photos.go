package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// FeedPageSize is the fixed page size of the live feed, newest first.
const FeedPageSize = 10

// FeedQuery selects a page of the feed. PageOwner narrows the feed to one
// uploader; Viewer marks which rows the requesting user has liked. Both are
// optional.
type FeedQuery struct {
	PageOwner string
	Viewer    string
}

// PhotoSummary is the transport projection of a photo row.
type PhotoSummary struct {
	ID         int64  `json:"id"`
	PhotoURL   string `json:"photo_url"`
	Username   string `json:"username"`
	LikesCount int    `json:"likes_count"`
	Liked      bool   `json:"liked"`
}

// CreatePhoto inserts a photo row for username and returns the new id.
// Every upload gets its own row even when the file content is shared on
// disk.
func (s *Store) CreatePhoto(ctx context.Context, username, filename, photoURL string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO photos (user_id, filename, photo_url)
		 SELECT id, $2, $3 FROM users WHERE username = $1
		 RETURNING id`,
		username, filename, photoURL,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("create photo: %w", err)
	}
	return id, nil
}

// LastPhotos returns the newest FeedPageSize photos, optionally filtered to
// a single uploader, ordered by descending id.
func (s *Store) LastPhotos(ctx context.Context, q FeedQuery) ([]PhotoSummary, error) {
	query := `
		SELECT p.id, p.photo_url, u.username,
		       (SELECT count(*) FROM likes l WHERE l.photo_id = p.id),
		       EXISTS (
		           SELECT 1 FROM likes l
		           JOIN users v ON v.id = l.user_id
		           WHERE l.photo_id = p.id AND v.username = $1
		       )
		FROM photos p
		JOIN users u ON u.id = p.user_id`
	args := []any{q.Viewer}
	if q.PageOwner != "" {
		query += ` WHERE u.username = $2`
		args = append(args, q.PageOwner)
	}
	query += fmt.Sprintf(` ORDER BY p.id DESC LIMIT %d`, FeedPageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("last photos: %w", err)
	}
	defer rows.Close()

	photos := []PhotoSummary{}
	for rows.Next() {
		var p PhotoSummary
		if err := rows.Scan(&p.ID, &p.PhotoURL, &p.Username, &p.LikesCount, &p.Liked); err != nil {
			return nil, fmt.Errorf("last photos scan: %w", err)
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("last photos rows: %w", err)
	}
	return photos, nil
}
