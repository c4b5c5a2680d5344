package sketch

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

// SQLStore keeps reference sketches in a libsql database.
type SQLStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// ConnectToDB opens a libsql connection. Bare paths are turned into file: DSNs
// and their parent directory is created.
func ConnectToDB(dsn string) (*sql.DB, error) {
	if !strings.Contains(dsn, ":") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, errors.Wrapf(err, "could not create database directory for %s", dsn)
		}
		dsn = "file:" + dsn
	} else if path, ok := strings.CutPrefix(dsn, "file:"); ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrapf(err, "could not create database directory for %s", path)
		}
	}

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", dsn)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to connect to database %s", dsn)
	}
	return db, nil
}

// NewSQLStore opens (and initializes if needed) the sketch database at dsn.
func NewSQLStore(dsn string, logger zerolog.Logger) (*SQLStore, error) {
	db, err := ConnectToDB(dsn)
	if err != nil {
		return nil, err
	}

	store := &SQLStore{db: db, logger: logger.With().Str("component", "sketch_store").Logger()}
	if err := store.InitSchema(); err != nil {
		db.Close()
		return nil, err
	}
	store.logger.Debug().Str("dsn", dsn).Msg("Sketch store ready")
	return store, nil
}

// InitSchema sets up the sketch tables.
func (s *SQLStore) InitSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS sketches (
		id TEXT PRIMARY KEY UNIQUE,
		input_file_name TEXT NOT NULL UNIQUE,
		ksize INTEGER NOT NULL,
		num_hashes INTEGER NOT NULL,
		position INTEGER NOT NULL,
		time_stamp DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return errors.Wrap(err, "failed to create sketches table")
	}

	_, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS sketch_kmers (
		sketch_id TEXT NOT NULL,
		slot INTEGER NOT NULL,
		kmer TEXT NOT NULL,
		PRIMARY KEY (sketch_id, slot)
	)`)
	if err != nil {
		return errors.Wrap(err, "failed to create sketch_kmers table")
	}

	return nil
}

// InsertSketch stores a sketch and its k-mers in one transaction and returns
// the generated sketch id.
func (s *SQLStore) InsertSketch(ctx context.Context, sk ReferenceSketch) (uuid.UUID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() // no-op once committed

	var position int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM sketches").Scan(&position); err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to count sketches")
	}

	id := uuid.New()
	result, err := tx.ExecContext(ctx,
		"INSERT INTO sketches (id, input_file_name, ksize, num_hashes, position) VALUES (?, ?, ?, ?, ?)",
		id.String(), sk.InputFileName, sk.KSize, len(sk.Kmers), position)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "failed to insert sketch %s", sk.InputFileName)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to get rows affected")
	}
	if rowsAffected != 1 {
		return uuid.Nil, errors.Errorf("expected 1 row affected, got %d", rowsAffected)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO sketch_kmers (sketch_id, slot, kmer) VALUES (?, ?, ?)")
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to prepare k-mer insert")
	}
	defer stmt.Close()

	for slot, kmer := range sk.Kmers {
		if _, err := stmt.ExecContext(ctx, id.String(), slot, kmer); err != nil {
			return uuid.Nil, errors.Wrapf(err, "failed to insert k-mer %d of %s", slot, sk.InputFileName)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to commit transaction")
	}

	s.logger.Debug().
		Str("id", id.String()).
		Str("input_file_name", sk.InputFileName).
		Int("num_hashes", len(sk.Kmers)).
		Msg("Stored reference sketch")

	return id, nil
}

// LoadSketches returns every sketch in insertion order with k-mers in slot
// order.
func (s *SQLStore) LoadSketches(ctx context.Context) ([]ReferenceSketch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.input_file_name, s.ksize, s.num_hashes, k.slot, k.kmer
		FROM sketches s
		JOIN sketch_kmers k ON k.sketch_id = s.id
		ORDER BY s.position, k.slot`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query sketches")
	}
	defer rows.Close()

	var (
		sketches []ReferenceSketch
		lastID   string
	)
	for rows.Next() {
		var (
			id, name, kmer         string
			ksize, numHashes, slot int
		)
		if err := rows.Scan(&id, &name, &ksize, &numHashes, &slot, &kmer); err != nil {
			return nil, errors.Wrap(err, "failed to scan sketch row")
		}
		if id != lastID {
			sketches = append(sketches, ReferenceSketch{
				InputFileName: name,
				KSize:         ksize,
				Kmers:         make([]string, 0, numHashes),
			})
			lastID = id
		}
		cur := &sketches[len(sketches)-1]
		if slot != len(cur.Kmers) {
			return nil, errors.Errorf("sketch %s is missing slot %d", name, len(cur.Kmers))
		}
		cur.Kmers = append(cur.Kmers, kmer)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate sketch rows")
	}

	s.logger.Info().Int("sketches", len(sketches)).Msg("Loaded reference sketches")
	return sketches, nil
}

// Count returns the number of stored sketches.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sketches").Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count sketches")
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
