package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/forestloss/internal/model"
	"github.com/paulmach/orb"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *HistoryDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newCompletedAnalysis creates a completed analysis started at the given time.
func newCompletedAnalysis(t *testing.T, cluster, farmID string, startedAt time.Time, lossPerYear float64) *model.Analysis {
	t.Helper()

	region, err := model.NewRegion(orb.Polygon{{
		{-45.00, -21.00}, {-44.99, -21.00}, {-44.99, -20.99}, {-45.00, -20.99}, {-45.00, -21.00},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := model.NewAnalysis(cluster, farmID)
	a.StartedAt = startedAt
	a.Dataset = "UMD/hansen/global_forest_change_2024_v1_12"
	a.SetRegion(region)
	a.SetResult(model.YearlyLossResult{
		{Year: 2021, Acres: lossPerYear},
		{Year: 2022, Acres: lossPerYear},
	})
	a.Complete()
	return a
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("unexpected path %s", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{CreateIfNotExists: false})
		if err == nil {
			t.Fatal("expected error for missing database")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		_ = db.Close()
	})
}

// TestSaveAnalysis tests storing analyses.
func TestSaveAnalysis(t *testing.T) {
	t.Parallel()

	t.Run("saves and loads by ID", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()
		a := newCompletedAnalysis(t, "cerrado", "farm-1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), 2.5)

		if err := db.SaveAnalysis(ctx, a); err != nil {
			t.Fatalf("failed to save analysis: %v", err)
		}

		got, err := db.GetAnalysisByID(ctx, a.ID)
		if err != nil {
			t.Fatalf("failed to load analysis: %v", err)
		}
		if got.FarmID != "farm-1" || got.Cluster != "cerrado" {
			t.Errorf("unexpected farm %s/%s", got.Cluster, got.FarmID)
		}
		if diff := cmp.Diff(a.Result, got.Result); diff != "" {
			t.Errorf("result mismatch (-want +got):\n%s", diff)
		}
		if got.Summary.TotalAcres != 5 {
			t.Errorf("expected total 5, got %v", got.Summary.TotalAcres)
		}
		if got.Region == nil || len(got.Region.Geometry()) != 1 {
			t.Error("expected region to round trip")
		}
	})

	t.Run("rejects incomplete analysis", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		a := model.NewAnalysis("cerrado", "farm-1")
		a.Fail(errors.New("source unavailable"))
		a.Complete()

		if err := db.SaveAnalysis(context.Background(), a); !errors.Is(err, ErrIncompleteAnalysis) {
			t.Errorf("expected ErrIncompleteAnalysis, got %v", err)
		}
	})

	t.Run("unknown ID", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		_, err := db.GetAnalysisByID(context.Background(), "missing")
		if !errors.Is(err, ErrAnalysisNotFound) {
			t.Errorf("expected ErrAnalysisNotFound, got %v", err)
		}
	})
}

// TestHistoryQueries tests farm listing, history and latest lookups.
func TestHistoryQueries(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	older := newCompletedAnalysis(t, "cerrado", "farm-1", base, 1)
	newer := newCompletedAnalysis(t, "cerrado", "farm-1", base.Add(48*time.Hour), 3)
	other := newCompletedAnalysis(t, "cerrado", "farm-2", base.Add(time.Hour), 0)
	elsewhere := newCompletedAnalysis(t, "sul de minas", "farm-1", base.Add(2*time.Hour), 0)

	// Insert out of chronological order.
	for _, a := range []*model.Analysis{newer, other, older, elsewhere} {
		if err := db.SaveAnalysis(ctx, a); err != nil {
			t.Fatalf("failed to save analysis: %v", err)
		}
	}

	t.Run("lists farms of a cluster", func(t *testing.T) {
		t.Parallel()

		farms, err := db.ListFarms(ctx, "cerrado")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(farms) != 2 {
			t.Fatalf("expected 2 farms, got %d", len(farms))
		}
		if farms[0].FarmID != "farm-1" || farms[0].Analyses != 2 {
			t.Errorf("unexpected first farm %+v", farms[0])
		}
		if !farms[0].LastAnalyzed.Equal(newer.StartedAt) {
			t.Errorf("expected last analyzed %v, got %v", newer.StartedAt, farms[0].LastAnalyzed)
		}
		if farms[1].FarmID != "farm-2" || farms[1].Analyses != 1 {
			t.Errorf("unexpected second farm %+v", farms[1])
		}
	})

	t.Run("lists farms of all clusters", func(t *testing.T) {
		t.Parallel()

		farms, err := db.ListFarms(ctx, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(farms) != 3 {
			t.Fatalf("expected 3 farms, got %d", len(farms))
		}
		if farms[2].Cluster != "sul de minas" {
			t.Errorf("expected clusters in order, got %+v", farms)
		}
	})

	t.Run("history is newest first", func(t *testing.T) {
		t.Parallel()

		history, err := db.GetHistory(ctx, "cerrado", "farm-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("expected 2 records, got %d", len(history))
		}
		if history[0].ID != newer.ID || history[1].ID != older.ID {
			t.Errorf("expected newest first, got %s then %s", history[0].ID, history[1].ID)
		}
		if history[0].TotalLossAcres != 6 {
			t.Errorf("expected total 6, got %v", history[0].TotalLossAcres)
		}
		if history[0].Risk != newer.Summary.Risk {
			t.Errorf("expected risk %s, got %s", newer.Summary.Risk, history[0].Risk)
		}
		if !history[1].Timestamp.Equal(older.StartedAt) {
			t.Errorf("expected timestamp %v, got %v", older.StartedAt, history[1].Timestamp)
		}
	})

	t.Run("latest analyses are limited", func(t *testing.T) {
		t.Parallel()

		latest, err := db.GetLatestAnalyses(ctx, "cerrado", "farm-1", 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(latest) != 1 || latest[0].ID != newer.ID {
			t.Fatalf("expected only the newest analysis, got %d", len(latest))
		}
	})

	t.Run("unknown farm has no history", func(t *testing.T) {
		t.Parallel()

		history, err := db.GetHistory(ctx, "cerrado", "farm-404")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(history) != 0 {
			t.Errorf("expected empty history, got %d", len(history))
		}
	})
}

// TestParseTimestamp tests stored timestamp parsing.
func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 5, 4, 3, 2, 1, 500, time.UTC)
	if got := parseTimestamp(want.Format(timestampLayout)); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if got := parseTimestamp("not a time"); !got.IsZero() {
		t.Errorf("expected zero time, got %v", got)
	}
}
