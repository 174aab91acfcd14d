package store

import (
	"context"
	"strings"
	"unicode"

	"github.com/rcliao/working-memory/internal/model"
)

const maxQueryTerms = 32

// MatchQuery turns free text into an FTS5 expression: each word becomes a
// quoted term and terms are OR-ed so partial matches still rank. It returns
// "" when the text has no searchable words.
func MatchQuery(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
		if len(terms) == maxQueryTerms {
			break
		}
	}
	return strings.Join(terms, " OR ")
}

// SearchChunks ranks a tenant's chunks against the query with BM25.
func (s *SQLiteStore) SearchChunks(ctx context.Context, tenantID, query string, limit int) ([]ChunkHit, error) {
	match := MatchQuery(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.created_at
		 FROM chunks_fts f JOIN chunks c ON c.rowid = f.rowid
		 WHERE chunks_fts MATCH ? AND c.tenant_id = ?
		 ORDER BY bm25(chunks_fts), c.created_at DESC, c.id
		 LIMIT ?`, match, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []ChunkHit
	for rows.Next() {
		var h ChunkHit
		var created string
		if err := rows.Scan(&h.ChunkID, &created); err != nil {
			return nil, err
		}
		h.CreatedAt = parseTime(created)
		h.Rank = len(hits) + 1
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SearchEpisodes ranks a tenant's episodes against the query.
func (s *SQLiteStore) SearchEpisodes(ctx context.Context, tenantID, query string, limit int) ([]model.Episode, error) {
	match := MatchQuery(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}
	return s.queryEpisodes(ctx,
		`SELECT `+episodeColumns+`
		 FROM episodes_fts f JOIN episodes e ON e.id = f.episode_id
		 WHERE episodes_fts MATCH ? AND e.tenant_id = ?
		 ORDER BY bm25(episodes_fts), e.created_at DESC
		 LIMIT ?`, match, tenantID, limit)
}

// SearchPrinciples ranks a tenant's active principles against the query.
func (s *SQLiteStore) SearchPrinciples(ctx context.Context, tenantID, query string, limit int) ([]model.SemanticPrinciple, error) {
	match := MatchQuery(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}
	return s.queryPrinciples(ctx,
		`SELECT `+principleColumns+`
		 FROM principles_fts f JOIN principles p ON p.id = f.principle_id
		 WHERE principles_fts MATCH ? AND p.tenant_id = ? AND p.superseded_by IS NULL
		 ORDER BY bm25(principles_fts), p.confidence DESC
		 LIMIT ?`, match, tenantID, limit)
}
