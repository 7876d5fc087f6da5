package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"trustd/internal/detect"
	"trustd/internal/pattern"
)

// Store represents the SQLite sample store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertSamples inserts a batch of samples and returns how many rows were
// written. Insertion is best-effort per row: a duplicate ID or malformed
// record skips that row without aborting the batch.
func (s *Store) InsertSamples(records []SampleRecord) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO samples
			(id, domain, device_id, text, calibrated_score,
			 length, caps, punctuation, digits, emojis, urls,
			 signature_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		sigJSON, err := marshalSignature(r.Signature)
		if err != nil {
			continue
		}

		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		res, err := stmt.Exec(
			r.ID, r.Domain, r.DeviceID, r.Text, r.CalibratedScore,
			r.Counts.Length, r.Counts.Caps, r.Counts.Punctuation,
			r.Counts.Digits, r.Counts.Emojis, r.Counts.URLs,
			sigJSON, createdAt.Unix(),
		)
		if err != nil {
			continue
		}
		n, err := res.RowsAffected()
		if err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return inserted, nil
}

// SamplesSince retrieves samples created at or after the cutoff, oldest first.
func (s *Store) SamplesSince(cutoff time.Time) ([]SampleRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, domain, device_id, text, calibrated_score,
		       length, caps, punctuation, digits, emojis, urls,
		       signature_json, created_at
		FROM samples
		WHERE created_at >= ?
		ORDER BY created_at ASC`, cutoff.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// GetSample retrieves a single sample by ID. Returns nil when absent.
func (s *Store) GetSample(id string) (*SampleRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, domain, device_id, text, calibrated_score,
		       length, caps, punctuation, digits, emojis, urls,
		       signature_json, created_at
		FROM samples
		WHERE id = ?`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("query sample: %w", err)
	}
	defer rows.Close()

	records, err := scanSamples(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// UpdateSignature stores the detection verdict for a sample.
func (s *Store) UpdateSignature(id string, sig detect.Signature) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signature: %w", err)
	}

	result, err := s.db.Exec(`UPDATE samples SET signature_json = ? WHERE id = ?`,
		string(data), id)
	if err != nil {
		return fmt.Errorf("update signature: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("sample %s: %w", id, ErrNotFound)
	}

	return nil
}

// GetClusters retrieves all persisted clusters for a platform.
func (s *Store) GetClusters(platform string) ([]pattern.Cluster, error) {
	rows, err := s.db.Query(`
		SELECT platform, cluster_type,
		       length_avg, punctuation_rate, caps_rate, emoji_rate,
		       digit_rate, url_rate, entropy, burstiness, length_std,
		       signature_json, sample_count, updated_at
		FROM pattern_clusters
		WHERE platform = ?`, platform,
	)
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	defer rows.Close()

	return scanClusters(rows)
}

// UpsertCluster writes a cluster, replacing any existing row for the same
// platform and type.
func (s *Store) UpsertCluster(c *pattern.Cluster) error {
	sigJSON, err := json.Marshal(c.Signature)
	if err != nil {
		return fmt.Errorf("marshal style signature: %w", err)
	}

	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO pattern_clusters
			(platform, cluster_type,
			 length_avg, punctuation_rate, caps_rate, emoji_rate,
			 digit_rate, url_rate, entropy, burstiness, length_std,
			 signature_json, sample_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Platform, string(c.Type),
		c.Centroid.LengthAvg, c.Centroid.PunctuationRate, c.Centroid.CapsRate,
		c.Centroid.EmojiRate, c.Centroid.DigitRate, c.Centroid.URLRate,
		c.Centroid.Entropy, c.Centroid.Burstiness, c.Centroid.LengthStd,
		string(sigJSON), c.SampleCount, updatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert cluster: %w", err)
	}

	return nil
}

// Platforms returns the distinct platforms that have persisted clusters.
func (s *Store) Platforms() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT platform FROM pattern_clusters ORDER BY platform`)
	if err != nil {
		return nil, fmt.Errorf("query platforms: %w", err)
	}
	defer rows.Close()

	var platforms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan platform: %w", err)
		}
		platforms = append(platforms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate platforms: %w", err)
	}

	return platforms, nil
}

// ClusterSets loads centroids for the given platforms, keyed by platform.
// Platforms with no persisted clusters are simply absent from the result.
// Implements detect.CentroidSource.
func (s *Store) ClusterSets(ctx context.Context, platforms []string) (map[string]pattern.ClusterSet, error) {
	sets := make(map[string]pattern.ClusterSet)

	for _, platform := range platforms {
		rows, err := s.db.QueryContext(ctx, `
			SELECT platform, cluster_type,
			       length_avg, punctuation_rate, caps_rate, emoji_rate,
			       digit_rate, url_rate, entropy, burstiness, length_std,
			       signature_json, sample_count, updated_at
			FROM pattern_clusters
			WHERE platform = ?`, platform,
		)
		if err != nil {
			return nil, fmt.Errorf("query clusters for %s: %w", platform, err)
		}

		clusters, err := scanClusters(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		if len(clusters) == 0 {
			continue
		}

		set := make(pattern.ClusterSet, len(clusters))
		for i := range clusters {
			centroid := clusters[i].Centroid
			set[clusters[i].Type] = &centroid
		}
		sets[platform] = set
	}

	return sets, nil
}

// ClusterStats reports how many centroids are persisted and the most recent
// rebuild time. The zero time means ingestion has never run.
func (s *Store) ClusterStats() (int64, time.Time, error) {
	var count int64
	var last sql.NullInt64
	err := s.db.QueryRow(`SELECT COUNT(*), MAX(updated_at) FROM pattern_clusters`).Scan(&count, &last)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("query cluster stats: %w", err)
	}
	if !last.Valid {
		return count, time.Time{}, nil
	}
	return count, time.Unix(last.Int64, 0).UTC(), nil
}

// DeleteSamplesBefore removes samples older than the cutoff. Returns the
// number of rows deleted.
func (s *Store) DeleteSamplesBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM samples WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete samples: %w", err)
	}
	return result.RowsAffected()
}

func marshalSignature(sig *detect.Signature) (*string, error) {
	if sig == nil {
		return nil, nil
	}
	data, err := json.Marshal(sig)
	if err != nil {
		return nil, err
	}
	str := string(data)
	return &str, nil
}

func scanSamples(rows *sql.Rows) ([]SampleRecord, error) {
	var records []SampleRecord

	for rows.Next() {
		var r SampleRecord
		var calibrated sql.NullFloat64
		var sigJSON sql.NullString
		var createdAt int64

		if err := rows.Scan(
			&r.ID, &r.Domain, &r.DeviceID, &r.Text, &calibrated,
			&r.Counts.Length, &r.Counts.Caps, &r.Counts.Punctuation,
			&r.Counts.Digits, &r.Counts.Emojis, &r.Counts.URLs,
			&sigJSON, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}

		if calibrated.Valid {
			v := calibrated.Float64
			r.CalibratedScore = &v
		}
		if sigJSON.Valid && sigJSON.String != "" {
			var sig detect.Signature
			if err := json.Unmarshal([]byte(sigJSON.String), &sig); err == nil {
				r.Signature = &sig
			}
		}
		r.CreatedAt = time.Unix(createdAt, 0).UTC()

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}

	return records, nil
}

func scanClusters(rows *sql.Rows) ([]pattern.Cluster, error) {
	var clusters []pattern.Cluster

	for rows.Next() {
		var c pattern.Cluster
		var clusterType string
		var sigJSON sql.NullString
		var updatedAt int64

		if err := rows.Scan(
			&c.Platform, &clusterType,
			&c.Centroid.LengthAvg, &c.Centroid.PunctuationRate, &c.Centroid.CapsRate,
			&c.Centroid.EmojiRate, &c.Centroid.DigitRate, &c.Centroid.URLRate,
			&c.Centroid.Entropy, &c.Centroid.Burstiness, &c.Centroid.LengthStd,
			&sigJSON, &c.SampleCount, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}

		c.Type = pattern.ClusterType(clusterType)
		if sigJSON.Valid && sigJSON.String != "" {
			if err := json.Unmarshal([]byte(sigJSON.String), &c.Signature); err != nil {
				return nil, fmt.Errorf("unmarshal style signature: %w", err)
			}
		}
		c.UpdatedAt = time.Unix(updatedAt, 0).UTC()

		clusters = append(clusters, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clusters: %w", err)
	}

	return clusters, nil
}

// ErrNotFound reports a missing row where callers want to distinguish it.
var ErrNotFound = errors.New("not found")
