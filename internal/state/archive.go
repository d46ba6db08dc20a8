// Package state provides the SQLite-backed result archive. Workflows
// whose persistence level is "archived" land here at the terminal node.
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/docuflow/docuflow/pkg/models"
)

// ErrNotFound indicates no archived result exists for the workflow id.
var ErrNotFound = errors.New("archived result not found")

// Store is what the orchestrator needs from the archive. A nil store
// disables archiving.
type Store interface {
	// SaveResult archives one finished workflow's result.
	SaveResult(record *ArchivedResult) error
	// GetResult loads one archived result by workflow id.
	GetResult(workflowID string) (*ArchivedResult, error)
	// ListRecent returns the newest n archived results.
	ListRecent(n int) ([]*ArchivedResult, error)
	// Close releases the underlying database.
	Close() error
}

// ArchivedResult is one row of the results table.
type ArchivedResult struct {
	WorkflowID    string
	TaskID        string
	Tier          models.Tier
	Framework     models.Framework
	Topology      models.Topology
	Outcome       models.Outcome
	Quality       float64
	Accuracy      float64
	Confidence    float64
	ExecutionTime time.Duration
	ErrorCount    int
	Output        map[string]any
	CompletedAt   time.Time
}

// NewArchivedResult flattens an execution result into an archive row.
func NewArchivedResult(result *models.ExecutionResult, tier models.Tier, decision *models.RoutingDecision) *ArchivedResult {
	return &ArchivedResult{
		WorkflowID:    result.WorkflowID,
		TaskID:        result.TaskID,
		Tier:          tier,
		Framework:     decision.Primary,
		Topology:      decision.Strategy.Topology,
		Outcome:       result.Outcome(),
		Quality:       result.Metrics.Quality,
		Accuracy:      result.Metrics.Accuracy,
		Confidence:    result.Metrics.Confidence,
		ExecutionTime: result.Metrics.ExecutionTime,
		ErrorCount:    len(result.Errors),
		Output:        result.Output,
		CompletedAt:   result.CompletedAt,
	}
}

// DefaultDBPath returns the archive location under the user data dir.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "docuflow", "docuflow.db")
}

// Archive is the SQLite-backed Store implementation.
type Archive struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens (and migrates) the archive at the given path, creating
// parent directories as needed. WAL mode is enabled for concurrent
// reads.
func Open(path string) (*Archive, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	a := &Archive{conn: conn, path: path}
	if err := a.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

// migrate applies all pending schema migrations.
func (a *Archive) migrate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := a.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Results},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := a.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Results = `
CREATE TABLE IF NOT EXISTS results (
	workflow_id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	tier TEXT NOT NULL,
	framework TEXT NOT NULL,
	topology TEXT NOT NULL,
	outcome TEXT NOT NULL,
	quality REAL NOT NULL,
	accuracy REAL NOT NULL,
	confidence REAL NOT NULL,
	execution_ms INTEGER NOT NULL,
	error_count INTEGER NOT NULL,
	output_json TEXT NOT NULL,
	completed_at DATETIME NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_results_task ON results(task_id);
CREATE INDEX IF NOT EXISTS idx_results_completed ON results(completed_at);
`

// SaveResult implements Store. Saving the same workflow id again
// replaces the row, so retried archival is safe.
func (a *Archive) SaveResult(record *ArchivedResult) error {
	output, err := json.Marshal(record.Output)
	if err != nil {
		return fmt.Errorf("encoding output for %s: %w", record.WorkflowID, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_, err = a.conn.Exec(`
		INSERT OR REPLACE INTO results
			(workflow_id, task_id, tier, framework, topology, outcome,
			 quality, accuracy, confidence, execution_ms, error_count,
			 output_json, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.WorkflowID, record.TaskID, string(record.Tier),
		string(record.Framework), string(record.Topology), string(record.Outcome),
		record.Quality, record.Accuracy, record.Confidence,
		record.ExecutionTime.Milliseconds(), record.ErrorCount,
		string(output), record.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("archiving result %s: %w", record.WorkflowID, err)
	}
	return nil
}

// GetResult implements Store.
func (a *Archive) GetResult(workflowID string) (*ArchivedResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	row := a.conn.QueryRow(`
		SELECT workflow_id, task_id, tier, framework, topology, outcome,
		       quality, accuracy, confidence, execution_ms, error_count,
		       output_json, completed_at
		FROM results WHERE workflow_id = ?`, workflowID)
	return scanResult(row)
}

// ListRecent implements Store.
func (a *Archive) ListRecent(n int) ([]*ArchivedResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.conn.Query(`
		SELECT workflow_id, task_id, tier, framework, topology, outcome,
		       quality, accuracy, confidence, execution_ms, error_count,
		       output_json, completed_at
		FROM results ORDER BY completed_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	defer rows.Close()

	var results []*ArchivedResult
	for rows.Next() {
		record, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, record)
	}
	return results, rows.Err()
}

// Close implements Store.
func (a *Archive) Close() error {
	return a.conn.Close()
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (*ArchivedResult, error) {
	var (
		record      ArchivedResult
		tier        string
		framework   string
		topology    string
		outcome     string
		executionMS int64
		outputJSON  string
	)
	err := row.Scan(&record.WorkflowID, &record.TaskID, &tier, &framework,
		&topology, &outcome, &record.Quality, &record.Accuracy,
		&record.Confidence, &executionMS, &record.ErrorCount,
		&outputJSON, &record.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning result: %w", err)
	}

	record.Tier = models.Tier(tier)
	record.Framework = models.Framework(framework)
	record.Topology = models.Topology(topology)
	record.Outcome = models.Outcome(outcome)
	record.ExecutionTime = time.Duration(executionMS) * time.Millisecond
	if err := json.Unmarshal([]byte(outputJSON), &record.Output); err != nil {
		return nil, fmt.Errorf("decoding output for %s: %w", record.WorkflowID, err)
	}
	return &record, nil
}

var _ Store = (*Archive)(nil)
