package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/forestloss/internal/model"
)

// FileName is the name of the history database inside the data directory.
const FileName = "forestloss.db"

var (
	// ErrAnalysisNotFound is returned when no analysis matches the requested ID.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrIncompleteAnalysis is returned when saving an analysis that did not complete.
	ErrIncompleteAnalysis = errors.New("only completed analyses can be saved")
)

// HistoryDB provides SQLite-based storage for completed farm analyses.
//
// Design decision: Stored analyses are records for reporting and comparison
// only. Nothing reads them back into a loss computation, so a new analysis
// always queries the loss raster again.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sqlx.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run 'forestloss analyze' first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw prevents modernc.org/sqlite from creating a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Path returns the database file path.
func (hdb *HistoryDB) Path() string {
	return hdb.dbPath
}

// Close closes the database connection.
func (hdb *HistoryDB) Close() error {
	return hdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (hdb *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analyses (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		cluster TEXT NOT NULL,
		farm_id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		dataset TEXT NOT NULL DEFAULT '',
		region_acres REAL NOT NULL,
		total_loss_acres REAL NOT NULL,
		risk INTEGER NOT NULL,
		analysis_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_farm ON analyses(cluster, farm_id, timestamp);
	`

	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// timestampLayout sorts lexicographically in chronological order.
const timestampLayout = "2006-01-02 15:04:05.000000000"

// SaveAnalysis stores a completed analysis.
// Images are not stored; the analysis JSON holds the region and results.
func (hdb *HistoryDB) SaveAnalysis(ctx context.Context, analysis *model.Analysis) error {
	if !analysis.Succeeded() {
		return ErrIncompleteAnalysis
	}

	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to serialize analysis: %w", err)
	}

	query := `
	INSERT INTO analyses (id, cluster, farm_id, timestamp, dataset, region_acres, total_loss_acres, risk, analysis_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = hdb.db.ExecContext(ctx, query,
		analysis.ID,
		analysis.Cluster,
		analysis.FarmID,
		analysis.StartedAt.UTC().Format(timestampLayout),
		analysis.Dataset,
		analysis.RegionAcres,
		analysis.Summary.TotalAcres,
		int(analysis.Summary.Risk),
		string(analysisJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	return nil
}

// FarmRecord summarizes the stored analyses of one farm.
type FarmRecord struct {
	// Cluster is the cluster the farm belongs to.
	Cluster string `db:"cluster" json:"cluster"`

	// FarmID identifies the farm within its cluster.
	FarmID string `db:"farm_id" json:"farm_id"`

	// Analyses is the number of stored analyses.
	Analyses int `db:"analyses" json:"analyses"`

	// LastAnalyzed is when the most recent analysis started.
	LastAnalyzed time.Time `db:"-" json:"last_analyzed"`

	// LastTimestamp is the stored form of LastAnalyzed.
	LastTimestamp string `db:"last_timestamp" json:"-"`
}

// ListFarms returns every farm with stored analyses, ordered by cluster and farm.
// An empty cluster lists farms of all clusters.
func (hdb *HistoryDB) ListFarms(ctx context.Context, cluster string) ([]FarmRecord, error) {
	query := `
	SELECT cluster, farm_id, COUNT(*) AS analyses, MAX(timestamp) AS last_timestamp
	FROM analyses
	WHERE (? = '' OR cluster = ?)
	GROUP BY cluster, farm_id
	ORDER BY cluster, farm_id
	`

	var farms []FarmRecord
	if err := hdb.db.SelectContext(ctx, &farms, query, cluster, cluster); err != nil {
		return nil, fmt.Errorf("failed to list farms: %w", err)
	}
	for i := range farms {
		farms[i].LastAnalyzed = parseTimestamp(farms[i].LastTimestamp)
	}
	return farms, nil
}

// AnalysisMetadata contains summary information about a stored analysis.
// This is used for displaying history without loading the full analysis.
type AnalysisMetadata struct {
	// ID is the analysis ID.
	ID string `db:"id" json:"id"`

	// Cluster is the cluster the farm belongs to.
	Cluster string `db:"cluster" json:"cluster"`

	// FarmID identifies the farm within its cluster.
	FarmID string `db:"farm_id" json:"farm_id"`

	// Timestamp is when the analysis started.
	Timestamp time.Time `db:"-" json:"timestamp"`

	// Dataset is the loss raster that was queried.
	Dataset string `db:"dataset" json:"dataset"`

	// RegionAcres is the farm area.
	RegionAcres float64 `db:"region_acres" json:"region_acres"`

	// TotalLossAcres is the summed loss over the analyzed years.
	TotalLossAcres float64 `db:"total_loss_acres" json:"total_loss_acres"`

	// Risk is the risk level of the analysis.
	Risk model.RiskLevel `db:"risk" json:"risk"`

	// RawTimestamp is the stored form of Timestamp.
	RawTimestamp string `db:"timestamp" json:"-"`
}

// GetHistory returns metadata of every analysis of a farm, newest first.
func (hdb *HistoryDB) GetHistory(ctx context.Context, cluster, farmID string) ([]AnalysisMetadata, error) {
	query := `
	SELECT id, cluster, farm_id, timestamp, dataset, region_acres, total_loss_acres, risk
	FROM analyses
	WHERE cluster = ? AND farm_id = ?
	ORDER BY timestamp DESC, seq DESC
	`

	var history []AnalysisMetadata
	if err := hdb.db.SelectContext(ctx, &history, query, cluster, farmID); err != nil {
		return nil, fmt.Errorf("failed to get analysis history: %w", err)
	}
	for i := range history {
		history[i].Timestamp = parseTimestamp(history[i].RawTimestamp)
	}
	return history, nil
}

// GetAnalysisByID loads a stored analysis.
// It returns ErrAnalysisNotFound when no analysis has the ID.
func (hdb *HistoryDB) GetAnalysisByID(ctx context.Context, id string) (*model.Analysis, error) {
	var analysisJSON string
	err := hdb.db.GetContext(ctx, &analysisJSON, `SELECT analysis_json FROM analyses WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAnalysisNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return decodeAnalysis(analysisJSON)
}

// GetLatestAnalyses loads up to limit analyses of a farm, newest first.
func (hdb *HistoryDB) GetLatestAnalyses(ctx context.Context, cluster, farmID string, limit int) ([]*model.Analysis, error) {
	query := `
	SELECT analysis_json FROM analyses
	WHERE cluster = ? AND farm_id = ?
	ORDER BY timestamp DESC, seq DESC
	LIMIT ?
	`

	var rows []string
	if err := hdb.db.SelectContext(ctx, &rows, query, cluster, farmID, limit); err != nil {
		return nil, fmt.Errorf("failed to get latest analyses: %w", err)
	}

	analyses := make([]*model.Analysis, 0, len(rows))
	for _, row := range rows {
		a, err := decodeAnalysis(row)
		if err != nil {
			continue // Skip malformed records
		}
		analyses = append(analyses, a)
	}
	return analyses, nil
}

func decodeAnalysis(data string) (*model.Analysis, error) {
	var a model.Analysis
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}
	return &a, nil
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timestampLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
