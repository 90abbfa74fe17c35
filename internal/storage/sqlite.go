package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"

	"github.com/d-o-hub/episodic-memory-engine/internal/memerr"
	"github.com/d-o-hub/episodic-memory-engine/internal/pattern"
	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore is the durable backend: a single pure-Go SQLite connection
// (no CGO, following the teacher's modernc.org/sqlite choice), WAL mode, and
// an optional compression envelope applied to every JSON payload column.
type SQLiteStore struct {
	db              *sql.DB
	logger          *zap.Logger
	compressAlgo    string
	compressMinSize int
}

// NewSQLiteStore opens (creating if absent) a durable store at path.
func NewSQLiteStore(path string, logger *zap.Logger, compressAlgo string, compressMinSize int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, memerr.StorageErrorf(err, "open sqlite database %s", path)
	}
	// A pure-Go SQLite driver serializes writes at the connection level;
	// one connection avoids SQLITE_BUSY storms under WAL.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-64000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, memerr.StorageErrorf(err, "set pragma %q", p)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, memerr.StorageErrorf(err, "apply schema")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{db: db, logger: logger, compressAlgo: compressAlgo, compressMinSize: compressMinSize}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) encode(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Compress(raw, s.compressAlgo, s.compressMinSize)
}

func (s *SQLiteStore) decode(payload []byte, v interface{}) error {
	raw, err := Decompress(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func (s *SQLiteStore) StoreEpisode(ctx context.Context, ep *types.Episode) error {
	payload, err := s.encode(ep)
	if err != nil {
		return memerr.StorageErrorf(err, "encode episode %s", ep.EpisodeID)
	}
	var rewardTotal sql.NullFloat64
	if ep.Reward != nil {
		rewardTotal = sql.NullFloat64{Float64: ep.Reward.Total, Valid: true}
	}
	var endTime sql.NullInt64
	if !ep.EndTime.IsZero() {
		endTime = sql.NullInt64{Int64: ep.EndTime.UnixMilli(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO episodes (episode_id, task_type, domain, start_time, end_time, payload, reward_total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(episode_id) DO UPDATE SET
			task_type=excluded.task_type, domain=excluded.domain, start_time=excluded.start_time,
			end_time=excluded.end_time, payload=excluded.payload, reward_total=excluded.reward_total`,
		ep.EpisodeID, string(ep.TaskType), ep.Context.Domain, ep.StartTime.UnixMilli(), endTime, payload, rewardTotal, time.Now().UnixMilli())
	if err != nil {
		return memerr.StorageErrorf(err, "store episode %s", ep.EpisodeID)
	}
	return nil
}

func (s *SQLiteStore) GetEpisode(ctx context.Context, episodeID string) (*types.Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM episodes WHERE episode_id = ?`, episodeID)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, memerr.NotFoundf("episode %s", episodeID)
		}
		return nil, memerr.StorageErrorf(err, "get episode %s", episodeID)
	}
	var ep types.Episode
	if err := s.decode(payload, &ep); err != nil {
		return nil, memerr.StorageErrorf(err, "decode episode %s", episodeID)
	}
	return &ep, nil
}

func (s *SQLiteStore) DeleteEpisode(ctx context.Context, episodeID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM episodes WHERE episode_id = ?`, episodeID)
	if err != nil {
		return memerr.StorageErrorf(err, "delete episode %s", episodeID)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM episode_summaries WHERE episode_id = ?`, episodeID)
	if err != nil {
		return memerr.StorageErrorf(err, "delete episode summary %s", episodeID)
	}
	return nil
}

func (s *SQLiteStore) QueryEpisodesSince(ctx context.Context, since time.Time, limit int) ([]*types.Episode, error) {
	query := `SELECT payload FROM episodes WHERE start_time >= ? ORDER BY start_time ASC`
	args := []interface{}{since.UnixMilli()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, memerr.StorageErrorf(err, "query episodes since %s", since)
	}
	defer rows.Close()
	return s.scanEpisodes(rows)
}

func (s *SQLiteStore) QueryEpisodesByMetadata(ctx context.Context, filter EpisodeFilter) ([]*types.Episode, error) {
	query := `SELECT payload FROM episodes WHERE 1=1`
	var args []interface{}
	if filter.Domain != "" {
		query += ` AND domain = ?`
		args = append(args, filter.Domain)
	}
	if filter.TaskType != "" {
		query += ` AND task_type = ?`
		args = append(args, string(filter.TaskType))
	}
	if !filter.Since.IsZero() {
		query += ` AND start_time >= ?`
		args = append(args, filter.Since.UnixMilli())
	}
	if !filter.Until.IsZero() {
		query += ` AND start_time <= ?`
		args = append(args, filter.Until.UnixMilli())
	}
	query += ` ORDER BY start_time DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, memerr.StorageErrorf(err, "query episodes by metadata")
	}
	defer rows.Close()
	episodes, err := s.scanEpisodes(rows)
	if err != nil {
		return nil, err
	}
	if len(filter.Tags) == 0 && len(filter.Metadata) == 0 {
		return episodes, nil
	}
	// Tag and free-form metadata filtering happen in Go: these are not
	// indexed columns, just small per-episode annotation maps.
	filtered := episodes[:0]
	for _, ep := range episodes {
		if !episodeMatchesTags(ep, filter.Tags) {
			continue
		}
		if !episodeMatchesMetadata(ep, filter.Metadata) {
			continue
		}
		filtered = append(filtered, ep)
	}
	return filtered, nil
}

func episodeMatchesTags(ep *types.Episode, tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	have := make(map[string]bool, len(ep.Tags))
	for _, t := range ep.Tags {
		have[t] = true
	}
	for _, want := range tags {
		if !have[want] {
			return false
		}
	}
	return true
}

func episodeMatchesMetadata(ep *types.Episode, want map[string]string) bool {
	for k, v := range want {
		if ep.Metadata[k] != v {
			return false
		}
	}
	return true
}

func (s *SQLiteStore) scanEpisodes(rows *sql.Rows) ([]*types.Episode, error) {
	var episodes []*types.Episode
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, memerr.StorageErrorf(err, "scan episode row")
		}
		var ep types.Episode
		if err := s.decode(payload, &ep); err != nil {
			return nil, memerr.StorageErrorf(err, "decode episode row")
		}
		episodes = append(episodes, &ep)
	}
	return episodes, rows.Err()
}

func (s *SQLiteStore) CountEpisodes(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodes`).Scan(&n); err != nil {
		return 0, memerr.StorageErrorf(err, "count episodes")
	}
	return n, nil
}

func (s *SQLiteStore) StorePattern(ctx context.Context, p *types.Pattern) error {
	payload, err := s.encode(p)
	if err != nil {
		return memerr.StorageErrorf(err, "encode pattern %s", p.PatternID)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO patterns (pattern_id, kind, domain, similarity_key, payload, confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern_id) DO UPDATE SET
			payload=excluded.payload, confidence=excluded.confidence, updated_at=excluded.updated_at`,
		p.PatternID, string(p.Kind), p.Context.Domain, pattern.SimilarityKey(p), payload, p.Confidence,
		p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli())
	if err != nil {
		return memerr.StorageErrorf(err, "store pattern %s", p.PatternID)
	}
	return nil
}

func (s *SQLiteStore) GetPattern(ctx context.Context, patternID string) (*types.Pattern, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM patterns WHERE pattern_id = ?`, patternID)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, memerr.NotFoundf("pattern %s", patternID)
		}
		return nil, memerr.StorageErrorf(err, "get pattern %s", patternID)
	}
	var p types.Pattern
	if err := s.decode(payload, &p); err != nil {
		return nil, memerr.StorageErrorf(err, "decode pattern %s", patternID)
	}
	return &p, nil
}

func (s *SQLiteStore) ListPatterns(ctx context.Context) ([]*types.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM patterns`)
	if err != nil {
		return nil, memerr.StorageErrorf(err, "list patterns")
	}
	defer rows.Close()
	var patterns []*types.Pattern
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, memerr.StorageErrorf(err, "scan pattern row")
		}
		var p types.Pattern
		if err := s.decode(payload, &p); err != nil {
			return nil, memerr.StorageErrorf(err, "decode pattern row")
		}
		patterns = append(patterns, &p)
	}
	return patterns, rows.Err()
}

func (s *SQLiteStore) DeletePattern(ctx context.Context, patternID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM patterns WHERE pattern_id = ?`, patternID)
	if err != nil {
		return memerr.StorageErrorf(err, "delete pattern %s", patternID)
	}
	return nil
}

func (s *SQLiteStore) StoreHeuristic(ctx context.Context, h *types.Heuristic) error {
	payload, err := s.encode(h)
	if err != nil {
		return memerr.StorageErrorf(err, "encode heuristic %s", h.ID)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO heuristics (heuristic_id, payload, confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(heuristic_id) DO UPDATE SET
			payload=excluded.payload, confidence=excluded.confidence, updated_at=excluded.updated_at`,
		h.ID, payload, h.Confidence, h.CreatedAt.UnixMilli(), h.UpdatedAt.UnixMilli())
	if err != nil {
		return memerr.StorageErrorf(err, "store heuristic %s", h.ID)
	}
	return nil
}

func (s *SQLiteStore) GetHeuristic(ctx context.Context, heuristicID string) (*types.Heuristic, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM heuristics WHERE heuristic_id = ?`, heuristicID)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, memerr.NotFoundf("heuristic %s", heuristicID)
		}
		return nil, memerr.StorageErrorf(err, "get heuristic %s", heuristicID)
	}
	var h types.Heuristic
	if err := s.decode(payload, &h); err != nil {
		return nil, memerr.StorageErrorf(err, "decode heuristic %s", heuristicID)
	}
	return &h, nil
}

func (s *SQLiteStore) ListHeuristics(ctx context.Context) ([]*types.Heuristic, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM heuristics`)
	if err != nil {
		return nil, memerr.StorageErrorf(err, "list heuristics")
	}
	defer rows.Close()
	var heuristics []*types.Heuristic
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, memerr.StorageErrorf(err, "scan heuristic row")
		}
		var h types.Heuristic
		if err := s.decode(payload, &h); err != nil {
			return nil, memerr.StorageErrorf(err, "decode heuristic row")
		}
		heuristics = append(heuristics, &h)
	}
	return heuristics, rows.Err()
}

func (s *SQLiteStore) StoreEpisodeSummary(ctx context.Context, sm *types.EpisodeSummary) error {
	payload, err := s.encode(sm)
	if err != nil {
		return memerr.StorageErrorf(err, "encode summary %s", sm.EpisodeID)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO episode_summaries (episode_id, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(episode_id) DO UPDATE SET payload=excluded.payload`,
		sm.EpisodeID, payload, sm.CreatedAt.UnixMilli())
	if err != nil {
		return memerr.StorageErrorf(err, "store summary %s", sm.EpisodeID)
	}
	return nil
}

func (s *SQLiteStore) GetEpisodeSummary(ctx context.Context, episodeID string) (*types.EpisodeSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM episode_summaries WHERE episode_id = ?`, episodeID)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, memerr.NotFoundf("episode summary %s", episodeID)
		}
		return nil, memerr.StorageErrorf(err, "get summary %s", episodeID)
	}
	var sm types.EpisodeSummary
	if err := s.decode(payload, &sm); err != nil {
		return nil, memerr.StorageErrorf(err, "decode summary %s", episodeID)
	}
	return &sm, nil
}

func (s *SQLiteStore) DeleteEpisodeSummary(ctx context.Context, episodeID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM episode_summaries WHERE episode_id = ?`, episodeID)
	if err != nil {
		return memerr.StorageErrorf(err, "delete summary %s", episodeID)
	}
	return nil
}

func (s *SQLiteStore) StoreRelationship(ctx context.Context, r *types.EpisodeRelationship) error {
	payload, err := s.encode(r)
	if err != nil {
		return memerr.StorageErrorf(err, "encode relationship %s", r.RelationshipID)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO episode_relationships (relationship_id, from_episode_id, to_episode_id, relationship_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(relationship_id) DO UPDATE SET payload=excluded.payload`,
		r.RelationshipID, r.FromEpisodeID, r.ToEpisodeID, string(r.Type), payload, r.CreatedAt.UnixMilli())
	if err != nil {
		return memerr.StorageErrorf(err, "store relationship %s", r.RelationshipID)
	}
	return nil
}

func (s *SQLiteStore) ListRelationships(ctx context.Context, episodeID string) ([]*types.EpisodeRelationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM episode_relationships WHERE from_episode_id = ? OR to_episode_id = ?`,
		episodeID, episodeID)
	if err != nil {
		return nil, memerr.StorageErrorf(err, "list relationships for %s", episodeID)
	}
	defer rows.Close()
	var rels []*types.EpisodeRelationship
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, memerr.StorageErrorf(err, "scan relationship row")
		}
		var r types.EpisodeRelationship
		if err := s.decode(payload, &r); err != nil {
			return nil, memerr.StorageErrorf(err, "decode relationship row")
		}
		rels = append(rels, &r)
	}
	return rels, rows.Err()
}

// StoreEpisodeWithCapacity is the atomic, capacity-enforcing write path
// (spec.md §4.1/§4.5): count, select victims if at capacity, evict, insert,
// all inside one transaction so a mid-way failure leaves no partial state.
func (s *SQLiteStore) StoreEpisodeWithCapacity(ctx context.Context, ep *types.Episode, maxEpisodes int, enforcer CapacityEnforcer) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, memerr.StorageErrorf(err, "begin capacity transaction")
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodes`).Scan(&count); err != nil {
		return nil, memerr.StorageErrorf(err, "count episodes in capacity transaction")
	}

	var evicted []string
	if maxEpisodes > 0 && count >= maxEpisodes && enforcer != nil {
		rows, err := tx.QueryContext(ctx, `SELECT payload FROM episodes`)
		if err != nil {
			return nil, memerr.StorageErrorf(err, "load candidates for eviction")
		}
		var candidates []*types.Episode
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				rows.Close()
				return nil, memerr.StorageErrorf(err, "scan eviction candidate")
			}
			var cand types.Episode
			if err := s.decode(payload, &cand); err != nil {
				rows.Close()
				return nil, memerr.StorageErrorf(err, "decode eviction candidate")
			}
			candidates = append(candidates, &cand)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, memerr.StorageErrorf(err, "iterate eviction candidates")
		}

		victims, err := enforcer.SelectVictims(ctx, candidates, maxEpisodes-1)
		if err != nil {
			return nil, memerr.StorageErrorf(err, "select eviction victims")
		}
		for _, victimID := range victims {
			if _, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE episode_id = ?`, victimID); err != nil {
				return nil, memerr.StorageErrorf(err, "evict episode %s", victimID)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM episode_summaries WHERE episode_id = ?`, victimID); err != nil {
				return nil, memerr.StorageErrorf(err, "evict episode summary %s", victimID)
			}
			evicted = append(evicted, victimID)
		}
	}

	payload, err := s.encode(ep)
	if err != nil {
		return nil, memerr.StorageErrorf(err, "encode episode %s", ep.EpisodeID)
	}
	var rewardTotal sql.NullFloat64
	if ep.Reward != nil {
		rewardTotal = sql.NullFloat64{Float64: ep.Reward.Total, Valid: true}
	}
	var endTime sql.NullInt64
	if !ep.EndTime.IsZero() {
		endTime = sql.NullInt64{Int64: ep.EndTime.UnixMilli(), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO episodes (episode_id, task_type, domain, start_time, end_time, payload, reward_total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(episode_id) DO UPDATE SET
			task_type=excluded.task_type, domain=excluded.domain, start_time=excluded.start_time,
			end_time=excluded.end_time, payload=excluded.payload, reward_total=excluded.reward_total`,
		ep.EpisodeID, string(ep.TaskType), ep.Context.Domain, ep.StartTime.UnixMilli(), endTime, payload, rewardTotal, time.Now().UnixMilli())
	if err != nil {
		return nil, memerr.StorageErrorf(err, "insert episode %s in capacity transaction", ep.EpisodeID)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES ('episode_count', ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		fmt.Sprintf("%d", count-len(evicted)+1)); err != nil {
		return nil, memerr.StorageErrorf(err, "update episode_count metadata")
	}

	if err := tx.Commit(); err != nil {
		return nil, memerr.StorageErrorf(err, "commit capacity transaction")
	}
	committed = true
	return evicted, nil
}
