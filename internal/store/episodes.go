package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/working-memory/internal/model"
)

const episodeColumns = `e.id, e.tenant_id, e.session_id, e.what_happened, e.what_noticed, e.what_learned,
	e.becoming, e.significance, e.tags, e.compression_level, e.summary, e.memory_strength,
	e.retrieval_count, e.last_retrieved_at, e.last_decay_at, e.consolidated_at, e.created_at`

// InsertEpisode stores a new episode at full compression and strength 1.
func (s *SQLiteStore) InsertEpisode(ctx context.Context, p EpisodeParams) (*model.Episode, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	ep := &model.Episode{
		ID:               s.newID(p.CreatedAt),
		TenantID:         p.TenantID,
		SessionID:        p.SessionID,
		WhatHappened:     p.WhatHappened,
		WhatNoticed:      p.WhatNoticed,
		WhatLearned:      p.WhatLearned,
		Becoming:         p.Becoming,
		Significance:     p.Significance,
		Tags:             p.Tags,
		CompressionLevel: model.LevelFull,
		MemoryStrength:   1.0,
		CreatedAt:        p.CreatedAt,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO episodes (id, tenant_id, session_id, what_happened, what_noticed, what_learned,
		                       becoming, significance, tags, compression_level, memory_strength, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.TenantID, ep.SessionID, ep.WhatHappened, marshalList(ep.WhatNoticed),
		marshalList(ep.WhatLearned), ep.Becoming, ep.Significance, marshalList(ep.Tags),
		string(ep.CompressionLevel), ep.MemoryStrength, formatTime(ep.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert episode: %w", err)
	}

	body := strings.Join(append(append([]string{ep.WhatHappened, ep.Becoming}, ep.WhatNoticed...), ep.WhatLearned...), "\n")
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO episodes_fts (episode_id, body) VALUES (?, ?)`, ep.ID, body); err != nil {
		return nil, fmt.Errorf("index episode: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ep, nil
}

// GetEpisode returns an episode by ID.
func (s *SQLiteStore) GetEpisode(ctx context.Context, id string) (*model.Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes e WHERE e.id = ?`, id)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("episode %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

// ListEpisodes returns episodes at the filter's level created in
// [Since, Until), oldest first.
func (s *SQLiteStore) ListEpisodes(ctx context.Context, f EpisodeFilter) ([]model.Episode, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	where := []string{"e.tenant_id = ?"}
	args := []any{f.TenantID}
	if f.Level != "" {
		where = append(where, "e.compression_level = ?")
		args = append(args, string(f.Level))
	}
	if !f.Since.IsZero() {
		where = append(where, "e.created_at >= ?")
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		where = append(where, "e.created_at < ?")
		args = append(args, formatTime(f.Until))
	}
	args = append(args, limit)
	return s.queryEpisodes(ctx,
		`SELECT `+episodeColumns+` FROM episodes e
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY e.created_at, e.id
		 LIMIT ?`, args...)
}

// AdvanceCompression moves an episode from one level to the next. It
// reports false without error when the episode is no longer at from, so
// repeated runs are no-ops and levels never regress.
func (s *SQLiteStore) AdvanceCompression(ctx context.Context, id string, from, to model.CompressionLevel, summary string, at time.Time) (bool, error) {
	if to.Rank() <= from.Rank() {
		return false, fmt.Errorf("compression %s -> %s does not advance", from, to)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE episodes SET compression_level = ?, summary = ?, consolidated_at = ?
		 WHERE id = ? AND compression_level = ?`,
		string(to), summary, formatTime(at), id, string(from))
	if err != nil {
		return false, fmt.Errorf("advance compression: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// BoostEpisode strengthens an episode after retrieval. The increment of
// retrieval_count is atomic and strength never decreases.
func (s *SQLiteStore) BoostEpisode(ctx context.Context, id string, boost float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE episodes
		 SET memory_strength = MAX(memory_strength, MIN(1.0, memory_strength + ?)),
		     retrieval_count = retrieval_count + 1,
		     last_retrieved_at = ?
		 WHERE id = ?`, boost, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("boost episode: %w", err)
	}
	return nil
}

// DecayEpisodes applies fn to every episode of the tenant, measuring elapsed
// time from the latest of creation, last retrieval, and last decay. It
// returns the number of episodes updated.
func (s *SQLiteStore) DecayEpisodes(ctx context.Context, tenantID string, now time.Time, fn StrengthFunc) (int, error) {
	return s.decay(ctx, now, fn,
		`SELECT id, memory_strength, created_at, last_retrieved_at, last_decay_at
		 FROM episodes WHERE tenant_id = ?`,
		`UPDATE episodes SET memory_strength = ?, last_decay_at = ? WHERE id = ?`,
		tenantID)
}

// EpisodeLevelCounts counts a tenant's episodes per compression level.
func (s *SQLiteStore) EpisodeLevelCounts(ctx context.Context, tenantID string) (map[model.CompressionLevel]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT compression_level, COUNT(*) FROM episodes
		 WHERE (? = '' OR tenant_id = ?) GROUP BY compression_level`, tenantID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.CompressionLevel]int{}
	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, err
		}
		counts[model.CompressionLevel(level)] = n
	}
	return counts, rows.Err()
}

type decayRow struct {
	id      string
	value   float64
	anchors []sql.NullString
	created string
}

// decay runs a select-then-update pass inside one transaction.
func (s *SQLiteStore) decay(ctx context.Context, now time.Time, fn StrengthFunc, selectSQL, updateSQL string, args ...any) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, selectSQL, args...)
	if err != nil {
		return 0, fmt.Errorf("select decay: %w", err)
	}
	var pending []decayRow
	for rows.Next() {
		var r decayRow
		var a, b sql.NullString
		if err := rows.Scan(&r.id, &r.value, &r.created, &a, &b); err != nil {
			rows.Close()
			return 0, err
		}
		r.anchors = []sql.NullString{a, b}
		pending = append(pending, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	stamp := formatTime(now)
	updated := 0
	for _, r := range pending {
		anchor := parseTime(r.created)
		for _, a := range r.anchors {
			if t := scanNullTime(a); t != nil && t.After(anchor) {
				anchor = *t
			}
		}
		elapsed := now.Sub(anchor)
		if elapsed <= 0 {
			continue
		}
		next := fn(r.value, elapsed)
		if _, err := tx.ExecContext(ctx, updateSQL, next, stamp, r.id); err != nil {
			return 0, fmt.Errorf("update decay: %w", err)
		}
		updated++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

func (s *SQLiteStore) queryEpisodes(ctx context.Context, query string, args ...any) ([]model.Episode, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var eps []model.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	return eps, rows.Err()
}

func scanEpisode(row scanner) (model.Episode, error) {
	var ep model.Episode
	var noticed, learned, becoming, tags, summary sql.NullString
	var lastRetrieved, lastDecay, consolidated sql.NullString
	var level, created string

	err := row.Scan(&ep.ID, &ep.TenantID, &ep.SessionID, &ep.WhatHappened, &noticed, &learned,
		&becoming, &ep.Significance, &tags, &level, &summary, &ep.MemoryStrength,
		&ep.RetrievalCount, &lastRetrieved, &lastDecay, &consolidated, &created)
	if err != nil {
		return ep, err
	}
	ep.WhatNoticed = unmarshalList(noticed)
	ep.WhatLearned = unmarshalList(learned)
	ep.Becoming = becoming.String
	ep.Tags = unmarshalList(tags)
	ep.CompressionLevel = model.CompressionLevel(level)
	ep.Summary = summary.String
	ep.LastRetrievedAt = scanNullTime(lastRetrieved)
	ep.LastDecayAt = scanNullTime(lastDecay)
	ep.ConsolidatedAt = scanNullTime(consolidated)
	ep.CreatedAt = parseTime(created)
	return ep, nil
}
