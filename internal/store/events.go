package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/working-memory/internal/chunker"
	"github.com/rcliao/working-memory/internal/model"
)

const eventColumns = `id, tenant_id, session_id, channel, actor_type, actor_id, kind, sensitivity,
	tags, content, data, refs, task_id, created_at`

// InsertEvent stores an event and its chunks in one transaction. The event
// and chunk IDs are assigned here; a zero CreatedAt is set to now.
func (s *SQLiteStore) InsertEvent(ctx context.Context, p EventParams) (*model.Event, []model.Chunk, error) {
	ev := p.Event
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	ev.ID = s.newID(ev.CreatedAt)
	created := formatTime(ev.CreatedAt)

	pieces := chunker.Split(ev.Content, p.Chunking)
	chunks := make([]model.Chunk, 0, len(pieces))
	for _, pc := range pieces {
		chunks = append(chunks, model.Chunk{
			ID:          s.newID(ev.CreatedAt),
			TenantID:    ev.TenantID,
			EventID:     ev.ID,
			SessionID:   ev.SessionID,
			Channel:     ev.Channel,
			Kind:        ev.Kind,
			Sensitivity: ev.Sensitivity,
			Seq:         pc.Seq,
			Text:        pc.Text,
			TokenEst:    pc.TokenEst,
			Importance:  p.Importance,
			CreatedAt:   ev.CreatedAt,
		})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var data any
	if len(ev.Data) > 0 {
		data = string(ev.Data)
	}
	var taskID any
	if ev.TaskID != "" {
		taskID = ev.TaskID
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.TenantID, ev.SessionID, string(ev.Channel), string(ev.Actor.Type), ev.Actor.ID,
		string(ev.Kind), string(ev.Sensitivity), marshalList(ev.Tags), ev.Content, data,
		marshalList(ev.Refs), taskID, created)
	if err != nil {
		return nil, nil, fmt.Errorf("insert event: %w", err)
	}

	for _, ref := range ev.Refs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO event_refs (event_id, ref_id) VALUES (?, ?)`, ev.ID, ref); err != nil {
			return nil, nil, fmt.Errorf("insert ref: %w", err)
		}
	}

	for _, c := range chunks {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO chunks (id, tenant_id, event_id, session_id, channel, kind, sensitivity,
			                     seq, text, token_est, importance, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.TenantID, c.EventID, c.SessionID, string(c.Channel), string(c.Kind),
			string(c.Sensitivity), c.Seq, c.Text, c.TokenEst, c.Importance, created)
		if err != nil {
			return nil, nil, fmt.Errorf("insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return &ev, chunks, nil
}

// GetEvent returns an event by ID.
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func scanEvent(row scanner) (model.Event, error) {
	var ev model.Event
	var channel, actorType, kind, sensitivity, created string
	var tags, data, refs, taskID sql.NullString

	err := row.Scan(&ev.ID, &ev.TenantID, &ev.SessionID, &channel, &actorType, &ev.Actor.ID,
		&kind, &sensitivity, &tags, &ev.Content, &data, &refs, &taskID, &created)
	if err != nil {
		return ev, err
	}
	ev.Channel = model.Channel(channel)
	ev.Actor.Type = model.ActorType(actorType)
	ev.Kind = model.EventKind(kind)
	ev.Sensitivity = model.Sensitivity(sensitivity)
	ev.Tags = unmarshalList(tags)
	ev.Refs = unmarshalList(refs)
	if data.Valid {
		ev.Data = []byte(data.String)
	}
	ev.TaskID = taskID.String
	ev.CreatedAt = parseTime(created)
	return ev, nil
}
