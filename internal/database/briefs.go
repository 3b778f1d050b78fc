package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
)

// SaveBrief stores b and folds it into the user's rolling context in one
// transaction. An empty userID stores the brief without touching any context.
func (db *DB) SaveBrief(ctx context.Context, userID string, b *brief.FinalBrief) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding brief: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO briefs
		(brief_id, user_id, topic, depth, executive_summary, source_count, partial,
		 execution_time, total_tokens, payload, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.BriefID, nullString(userID), b.Topic, b.Depth, b.ExecutiveSummary, len(b.Sources), b.Partial,
		b.ExecutionTime, b.TotalTokens(), string(payload), formatTime(b.GeneratedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting brief: %w", err)
	}

	if userID != "" {
		uc, err := getContext(ctx, tx, userID)
		if err != nil {
			return err
		}
		if uc == nil {
			uc = &brief.UserContext{UserID: userID}
		}
		FoldBrief(uc, b, time.Now())
		if err := putContext(ctx, tx, uc); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	db.logger.Debug("brief saved", zap.String("brief_id", b.BriefID), zap.String("user_id", userID))
	return nil
}

// GetBrief returns the brief with the given id, or nil if none exists.
func (db *DB) GetBrief(ctx context.Context, briefID string) (*brief.FinalBrief, error) {
	var payload string
	err := db.conn.QueryRowContext(ctx, "SELECT payload FROM briefs WHERE brief_id = ?", briefID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading brief: %w", err)
	}

	var b brief.FinalBrief
	if err := json.Unmarshal([]byte(payload), &b); err != nil {
		return nil, fmt.Errorf("decoding brief %s: %w", briefID, err)
	}
	return &b, nil
}

// ListBriefs returns a user's most recent briefs, newest first. An empty
// userID lists briefs across all users.
func (db *DB) ListBriefs(ctx context.Context, userID string, limit int) ([]BriefRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT brief_id, COALESCE(user_id, ''), topic, depth, executive_summary, source_count,
		partial, execution_time, total_tokens, generated_at FROM briefs`
	args := []any{}
	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY generated_at DESC, brief_id LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []BriefRecord
	for rows.Next() {
		var r BriefRecord
		var generatedAt string
		if err := rows.Scan(&r.BriefID, &r.UserID, &r.Topic, &r.Depth, &r.ExecutiveSummary,
			&r.SourceCount, &r.Partial, &r.ExecutionTime, &r.TotalTokens, &generatedAt); err != nil {
			return nil, err
		}
		r.GeneratedAt = parseTime(generatedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM briefs", &s.Briefs},
		{"SELECT COUNT(*) FROM briefs WHERE partial = 1", &s.PartialBriefs},
		{"SELECT COUNT(*) FROM user_contexts", &s.Users},
		{"SELECT COALESCE(SUM(total_tokens), 0) FROM briefs", &s.TotalTokens},
	}

	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
