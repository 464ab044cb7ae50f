package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
)

// ToggleLike flips the (user, photo) like inside one transaction: delete
// first, insert when nothing was deleted. ON CONFLICT absorbs the race where
// two concurrent toggles both observe no existing like, so duplicate
// requests resolve to a single liked/not-liked outcome and never surface a
// constraint violation. Returns whether the photo is liked afterwards.
func (s *Store) ToggleLike(ctx context.Context, username string, photoID int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("toggle like: %w", err)
	}
	defer tx.Rollback()

	userID, err := userIDTx(ctx, tx, username)
	if err != nil {
		return false, err
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM photos WHERE id = $1)`, photoID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("toggle like: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM likes WHERE user_id = $1 AND photo_id = $2`, userID, photoID)
	if err != nil {
		return false, fmt.Errorf("toggle like delete: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("toggle like: %w", err)
	}

	liked := false
	if deleted == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO likes (user_id, photo_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, userID, photoID); err != nil {
			return false, fmt.Errorf("toggle like insert: %w", err)
		}
		liked = true
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("toggle like commit: %w", err)
	}
	return liked, nil
}

// ToggleFollow flips the follower -> followee edge with the same
// transactional delete-then-insert shape as ToggleLike. Returns whether the
// follow exists afterwards.
func (s *Store) ToggleFollow(ctx context.Context, follower, followee string) (bool, error) {
	if follower == followee {
		return false, ErrSelfFollow
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("toggle follow: %w", err)
	}
	defer tx.Rollback()

	followerID, err := userIDTx(ctx, tx, follower)
	if err != nil {
		return false, err
	}
	followeeID, err := userIDTx(ctx, tx, followee)
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`,
		followerID, followeeID)
	if err != nil {
		return false, fmt.Errorf("toggle follow delete: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("toggle follow: %w", err)
	}

	following := false
	if deleted == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO follows (follower_id, followee_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, followerID, followeeID); err != nil {
			return false, fmt.Errorf("toggle follow insert: %w", err)
		}
		following = true
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("toggle follow commit: %w", err)
	}
	return following, nil
}

var mentionRe = regexp.MustCompile(`@(\w+)`)

// AddComment persists a comment on a photo and records @mentions that
// resolve to existing users. Returns the comment id.
func (s *Store) AddComment(ctx context.Context, username string, photoID int64, text string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("add comment: %w", err)
	}
	defer tx.Rollback()

	userID, err := userIDTx(ctx, tx, username)
	if err != nil {
		return 0, err
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM photos WHERE id = $1)`, photoID,
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("add comment: %w", err)
	}
	if !exists {
		return 0, ErrNotFound
	}

	var commentID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO comments (photo_id, user_id, body) VALUES ($1, $2, $3) RETURNING id`,
		photoID, userID, text,
	).Scan(&commentID)
	if err != nil {
		return 0, fmt.Errorf("add comment insert: %w", err)
	}

	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		var mentionedID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM users WHERE username = $1`, m[1]).Scan(&mentionedID)
		if errors.Is(err, sql.ErrNoRows) {
			continue // mention of an unknown name is not an error
		}
		if err != nil {
			return 0, fmt.Errorf("add comment mention: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO comment_mentions (comment_id, user_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, commentID, mentionedID); err != nil {
			return 0, fmt.Errorf("add comment mention: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("add comment commit: %w", err)
	}
	return commentID, nil
}

// ProfileStats are the follower/following counts shown on a profile page.
type ProfileStats struct {
	Followers int
	Following int
}

func (s *Store) ProfileStats(ctx context.Context, username string) (ProfileStats, error) {
	var st ProfileStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
		    (SELECT count(*) FROM follows f JOIN users u ON u.id = f.followee_id WHERE u.username = $1),
		    (SELECT count(*) FROM follows f JOIN users u ON u.id = f.follower_id WHERE u.username = $1)`,
		username,
	).Scan(&st.Followers, &st.Following)
	if err != nil {
		return ProfileStats{}, fmt.Errorf("profile stats: %w", err)
	}
	return st, nil
}
