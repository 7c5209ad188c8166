package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"

	"github.com/ict-visualizer/backend/internal/logger"
	"github.com/ict-visualizer/backend/internal/models"
)

// BoardStore is the persistent DuckDB archive of parsed boards. Every parsed
// board is appended once; the analytics endpoints query it.
type BoardStore struct {
	db     *sql.DB
	dbPath string
}

// TestPoint is one historical result of a named test.
type TestPoint struct {
	DMC       string           `json:"dmc"`
	TimeStart models.Timestamp `json:"timeStart"`
	Outcome   string           `json:"outcome"`
	Value     float64          `json:"value"`
}

// YieldStats aggregates pass/fail counts for one product.
type YieldStats struct {
	ProductID string  `json:"productId"`
	Boards    int     `json:"boards"`
	Passed    int     `json:"passed"`
	Failed    int     `json:"failed"`
	Yield     float64 `json:"yield"`
}

const (
	defaultMemoryLimit = "512MB"
	defaultThreads     = 2
)

// NewBoardStore opens (or creates) the archive database under dataDir with
// default DuckDB tuning.
func NewBoardStore(dataDir string) (*BoardStore, error) {
	return NewBoardStoreWithTuning(dataDir, defaultMemoryLimit, defaultThreads)
}

// NewBoardStoreWithTuning opens the archive with explicit DuckDB memory and
// thread limits. Empty or non-positive values fall back to the defaults.
func NewBoardStoreWithTuning(dataDir, memoryLimit string, threads int) (*BoardStore, error) {
	if memoryLimit == "" {
		memoryLimit = defaultMemoryLimit
	}
	if threads <= 0 {
		threads = defaultThreads
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "archive.duckdb")

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", memoryLimit),
			fmt.Sprintf("PRAGMA threads=%d", threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS boards (
			id           VARCHAR PRIMARY KEY,
			source       VARCHAR NOT NULL,
			product_id   VARCHAR NOT NULL,
			revision_id  VARCHAR,
			dmc          VARCHAR NOT NULL,
			mother_dmc   VARCHAR,
			panel_index  INTEGER,
			status       INTEGER NOT NULL,
			passed       BOOLEAN NOT NULL,
			time_start   BIGINT,
			time_end     BIGINT,
			test_count   INTEGER,
			failed_tests INTEGER,
			archived_at  BIGINT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create boards table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS board_tests (
			board_id    VARCHAR NOT NULL,
			seq         INTEGER NOT NULL,
			name        VARCHAR NOT NULL,
			test_type   VARCHAR NOT NULL,
			outcome     VARCHAR NOT NULL,
			value       DOUBLE,
			limit_kind  VARCHAR,
			nominal     DOUBLE,
			upper_limit DOUBLE,
			lower_limit DOUBLE
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create board_tests table: %w", err)
	}

	// Secondary indexes are best-effort; the archive works without them.
	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_boards_dmc ON boards(dmc)",
		"CREATE INDEX IF NOT EXISTS idx_boards_time ON boards(time_start)",
		"CREATE INDEX IF NOT EXISTS idx_tests_name ON board_tests(name)",
	} {
		if _, err := db.Exec(idx); err != nil {
			logger.Warnf("archive index creation failed: %v", err)
		}
	}

	return &BoardStore{db: db, dbPath: dbPath}, nil
}

// ArchiveBoard inserts a board and its tests. A board already archived with
// the same DMC and start time is skipped.
func (s *BoardStore) ArchiveBoard(board *models.BoardLog) error {
	var existing int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM boards WHERE dmc = ? AND time_start = ?",
		board.DMC, int64(board.TimeStart),
	).Scan(&existing)
	if err != nil {
		return fmt.Errorf("dedupe query failed: %w", err)
	}
	if existing > 0 {
		logger.Debugf("archive: board %s at %d already stored", board.DMC, board.TimeStart)
		return nil
	}

	id := uuid.New().String()
	_, err = s.db.Exec(`
		INSERT INTO boards (id, source, product_id, revision_id, dmc, mother_dmc,
			panel_index, status, passed, time_start, time_end,
			test_count, failed_tests, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, board.Source, board.ProductID, board.RevisionID, board.DMC, board.MotherDMC,
		board.PanelIndex, board.Status, board.Passed,
		int64(board.TimeStart), int64(board.TimeEnd),
		len(board.Tests), board.FailedTestCount(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("board insert failed: %w", err)
	}

	if len(board.Tests) == 0 {
		return nil
	}

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "board_tests")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		for i := range board.Tests {
			t := &board.Tests[i]
			err := appender.AppendRow(
				id,
				int32(i),
				t.Name,
				string(t.Type),
				string(t.Outcome),
				t.Value,
				string(t.Limits.Kind),
				t.Limits.Nominal,
				t.Limits.Upper,
				t.Limits.Lower,
			)
			if err != nil {
				return fmt.Errorf("failed to append test %d: %w", i, err)
			}
		}

		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	return nil
}

// Count returns the number of archived boards.
func (s *BoardStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM boards").Scan(&n)
	return n, err
}

// RecentBoards returns the most recently archived boards.
func (s *BoardStore) RecentBoards(ctx context.Context, limit int) ([]models.BoardSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, product_id, dmc, mother_dmc, panel_index, status, passed,
			time_start, time_end, test_count, failed_tests
		FROM boards ORDER BY archived_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// FindByDMC returns archived boards whose DMC contains the given fragment,
// newest first.
func (s *BoardStore) FindByDMC(ctx context.Context, dmc string) ([]models.BoardSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, product_id, dmc, mother_dmc, panel_index, status, passed,
			time_start, time_end, test_count, failed_tests
		FROM boards WHERE dmc ILIKE ? ORDER BY time_start DESC LIMIT 100
	`, "%"+dmc+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// TestHistory returns the archived results of one named test, newest first.
func (s *BoardStore) TestHistory(ctx context.Context, name string, limit int) ([]TestPoint, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.dmc, b.time_start, t.outcome, t.value
		FROM board_tests t JOIN boards b ON b.id = t.board_id
		WHERE t.name = ?
		ORDER BY b.time_start DESC LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]TestPoint, 0, limit)
	for rows.Next() {
		var p TestPoint
		var ts int64
		if err := rows.Scan(&p.DMC, &ts, &p.Outcome, &p.Value); err != nil {
			return nil, err
		}
		p.TimeStart = models.Timestamp(ts)
		points = append(points, p)
	}
	return points, rows.Err()
}

// ProductYield aggregates pass rates per product. An empty product filter
// returns all products.
func (s *BoardStore) ProductYield(ctx context.Context, productID string) ([]YieldStats, error) {
	query := `
		SELECT product_id, COUNT(*), SUM(CASE WHEN passed THEN 1 ELSE 0 END)
		FROM boards
	`
	var args []interface{}
	if productID != "" {
		query += " WHERE product_id = ?"
		args = append(args, productID)
	}
	query += " GROUP BY product_id ORDER BY product_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []YieldStats
	for rows.Next() {
		var st YieldStats
		var boards, passed int64
		if err := rows.Scan(&st.ProductID, &boards, &passed); err != nil {
			return nil, err
		}
		st.Boards = int(boards)
		st.Passed = int(passed)
		st.Failed = st.Boards - st.Passed
		if st.Boards > 0 {
			st.Yield = float64(st.Passed) / float64(st.Boards)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// FailedOnlyOn counts failed boards of a product whose failing tests all
// belong to the given name list. Boards with no failing test rows (aborted
// runs) are not counted.
func (s *BoardStore) FailedOnlyOn(ctx context.Context, productID string, testNames []string) (int, error) {
	if len(testNames) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(testNames)), ",")
	args := make([]interface{}, 0, len(testNames)+1)
	args = append(args, productID)
	for _, name := range testNames {
		args = append(args, name)
	}

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM boards b
		WHERE b.product_id = ? AND b.passed = false
		AND EXISTS (
			SELECT 1 FROM board_tests t
			WHERE t.board_id = b.id AND t.outcome = 'fail'
		)
		AND NOT EXISTS (
			SELECT 1 FROM board_tests t
			WHERE t.board_id = b.id AND t.outcome = 'fail'
			AND t.name NOT IN (`+placeholders+`)
		)
	`, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ignored-failure query failed: %w", err)
	}
	return n, nil
}

// Close closes the archive database. The file stays on disk.
func (s *BoardStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func scanSummaries(rows *sql.Rows) ([]models.BoardSummary, error) {
	var list []models.BoardSummary
	for rows.Next() {
		var b models.BoardSummary
		var start, end int64
		if err := rows.Scan(&b.Source, &b.ProductID, &b.DMC, &b.MotherDMC, &b.PanelIndex,
			&b.Status, &b.Passed, &start, &end, &b.TestCount, &b.FailedCount); err != nil {
			return nil, err
		}
		b.TimeStart = models.Timestamp(start)
		b.TimeEnd = models.Timestamp(end)
		b.StatusText = models.StatusText(b.Status)
		list = append(list, b)
	}
	return list, rows.Err()
}
