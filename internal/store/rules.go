package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rcliao/working-memory/internal/chunker"
	"github.com/rcliao/working-memory/internal/model"
)

// InsertRule stores a rule. Its token estimate is fixed here.
func (s *SQLiteStore) InsertRule(ctx context.Context, p RuleParams) (*model.Rule, error) {
	if p.At.IsZero() {
		p.At = time.Now().UTC()
	}
	r := &model.Rule{
		ID:        s.newID(p.At),
		TenantID:  p.TenantID,
		AgentID:   p.AgentID,
		Channel:   p.Channel,
		Text:      p.Text,
		Priority:  p.Priority,
		TokenEst:  chunker.EstimateTokens(p.Text),
		CreatedAt: p.At,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rules (id, tenant_id, agent_id, channel, text, priority, token_est, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TenantID, r.AgentID, string(r.Channel), r.Text, r.Priority, r.TokenEst, formatTime(r.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert rule: %w", err)
	}
	return r, nil
}

// RulesFor returns rules that apply to the agent on the channel, highest
// priority first.
func (s *SQLiteStore) RulesFor(ctx context.Context, tenantID, agentID string, channel model.Channel) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, agent_id, channel, text, priority, token_est, created_at
		 FROM rules
		 WHERE tenant_id = ? AND agent_id IN ('', ?) AND channel IN ('', ?)
		 ORDER BY priority DESC, created_at, id`, tenantID, agentID, string(channel))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.Rule
	for rows.Next() {
		var r model.Rule
		var ch, created string
		if err := rows.Scan(&r.ID, &r.TenantID, &r.AgentID, &ch, &r.Text, &r.Priority, &r.TokenEst, &created); err != nil {
			return nil, err
		}
		r.Channel = model.Channel(ch)
		r.CreatedAt = parseTime(created)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
