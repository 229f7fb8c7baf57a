package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"leadwatch/internal/intent"
	logx "leadwatch/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Layout under the configured directory:
//   - comments-YYYY-MM-DD.jsonl (append-only JSON Lines, partitioned by day)
//   - channels.json             (summary snapshot, rewritten atomically)
type fileStore struct {
	log logx.Logger
	dir string

	mu        sync.Mutex
	day       string
	dayFile   *os.File
	summaries map[string]ChannelSummary
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, dir: dir, summaries: map[string]ChannelSummary{}}
	if err := s.loadSummaries(); err != nil {
		log.Debug("channels snapshot not loaded", logx.Err(err))
	}
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dayFile != nil {
		err := s.dayFile.Close()
		s.dayFile = nil
		return err
	}
	return nil
}

func (s *fileStore) AppendComment(ctx context.Context, a intent.AnalyzedComment) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	at := a.AnalyzedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	f, err := s.dayFileLocked(at)
	if err != nil {
		return err
	}
	return json.NewEncoder(f).Encode(a)
}

func (s *fileStore) PutChannelSummary(ctx context.Context, sum ChannelSummary) error {
	_ = ctx
	if strings.TrimSpace(sum.Channel) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[sum.Channel] = sum
	return s.writeSummariesLocked()
}

func (s *fileStore) ChannelSummaries(ctx context.Context) ([]ChannelSummary, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ChannelSummary, 0, len(s.summaries))
	for _, v := range s.summaries {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out, nil
}

// dayFileLocked returns the append handle for the record's day, rolling the
// handle over at day boundaries.
func (s *fileStore) dayFileLocked(at time.Time) (*os.File, error) {
	day := at.UTC().Format("2006-01-02")
	if s.dayFile != nil && s.day == day {
		return s.dayFile, nil
	}
	if s.dayFile != nil {
		_ = s.dayFile.Close()
		s.dayFile = nil
	}
	path := filepath.Join(s.dir, "comments-"+day+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.day = day
	s.dayFile = f
	return f, nil
}

func (s *fileStore) loadSummaries() error {
	f, err := os.Open(filepath.Join(s.dir, "channels.json"))
	if err != nil {
		return err
	}
	defer f.Close()

	var list []ChannelSummary
	if err := json.NewDecoder(f).Decode(&list); err != nil {
		return err
	}
	for _, sum := range list {
		if sum.Channel == "" {
			continue
		}
		s.summaries[sum.Channel] = sum
	}
	return nil
}

func (s *fileStore) writeSummariesLocked() error {
	list := make([]ChannelSummary, 0, len(s.summaries))
	for _, v := range s.summaries {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Channel < list[j].Channel })

	path := filepath.Join(s.dir, "channels.json")
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(list); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
