package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"leadwatch/internal/intent"
	logx "leadwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendComment(ctx context.Context, a intent.AnalyzedComment) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	at := a.AnalyzedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO comments(channel, post_id, comment_id, author, username, phone, body, posted_at,
		                      intent, confidence, is_lead, lead_score, need_summary, analyzed_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.Channel, a.PostID, a.CommentID, nullStr(a.Author), nullStr(a.Username), nullStr(a.Phone),
		a.Text, a.Date.UTC().Format(time.RFC3339Nano),
		a.Intent.String(), a.Confidence, boolInt(a.IsLead), a.LeadScore, nullStr(a.NeedSummary),
		at.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) PutChannelSummary(ctx context.Context, sum ChannelSummary) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(sum.Channel) == "" {
		return nil
	}
	var threads any
	if sum.HasThreads != nil {
		threads = boolInt(*sum.HasThreads)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_summary(channel, comments, leads, has_threads, last_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(channel) DO UPDATE SET
		   comments=excluded.comments, leads=excluded.leads,
		   has_threads=excluded.has_threads, last_at=excluded.last_at`,
		sum.Channel, sum.Comments, sum.Leads, threads, sum.LastAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) ChannelSummaries(ctx context.Context) ([]ChannelSummary, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel, comments, leads, has_threads, last_at FROM channel_summary ORDER BY channel`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChannelSummary
	for rows.Next() {
		var (
			sum     ChannelSummary
			threads sql.NullInt64
			lastAt  string
		)
		if err := rows.Scan(&sum.Channel, &sum.Comments, &sum.Leads, &threads, &lastAt); err != nil {
			return nil, err
		}
		if threads.Valid {
			v := threads.Int64 != 0
			sum.HasThreads = &v
		}
		if t, err := time.Parse(time.RFC3339Nano, lastAt); err == nil {
			sum.LastAt = t
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
