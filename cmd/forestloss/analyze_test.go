package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/forestloss/internal/boundary"
	"github.com/nao1215/forestloss/internal/config"
	"github.com/nao1215/forestloss/internal/database"
	"github.com/nao1215/forestloss/internal/model"
	"github.com/nao1215/forestloss/internal/report"
	"github.com/nao1215/forestloss/internal/synthetic"
	"github.com/paulmach/orb"
)

// oneAcre is the cell area in square meters that makes each cell one acre.
const oneAcre = 1 / model.AcresPerSquareMeter

// staticSource serves fixed regions by farm id.
type staticSource map[string]*model.Region

func (s staticSource) Lookup(_ context.Context, _ string, farmID string) (*model.Region, error) {
	region, ok := s[farmID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", boundary.ErrFarmNotFound, farmID)
	}
	return region, nil
}

// testDeps returns analysis dependencies backed by a synthetic 10x10 grid of
// one-acre cells with ten cells lost in 2022. Farms "farm-1" and "farm-2"
// both cover the whole grid.
func testDeps(t *testing.T) (*analyzeDeps, *bytes.Buffer) {
	t.Helper()

	g := synthetic.NewGrid(orb.Point{-47.9, -15.8}, 0.0006, 10, 10, synthetic.WithCellArea(oneAcre))
	for col := range 10 {
		if err := g.Set(3, col, 22); err != nil {
			t.Fatal(err)
		}
	}
	region, err := model.NewRegion(g.Bound().ToPolygon())
	if err != nil {
		t.Fatalf("failed to build region: %v", err)
	}

	var stdout bytes.Buffer
	return &analyzeDeps{
		source:  staticSource{"farm-1": region, "farm-2": region},
		backend: g,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		stdout:  &stdout,
		stderr:  io.Discard,
	}, &stdout
}

// testConfig returns a valid configuration that records into a temporary
// database.
func testConfig(t *testing.T, farmIDs ...string) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Cluster = "cerrado"
	cfg.FarmIDs = farmIDs
	cfg.Project = "test-project"
	cfg.MapSize = 64
	cfg.DBDir = t.TempDir()
	cfg.File = &config.File{Clusters: map[string]config.ClusterConfig{"cerrado": {}}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return cfg
}

// storedHistory returns the recorded analyses of a farm.
func storedHistory(t *testing.T, dbDir, farmID string) []database.AnalysisMetadata {
	t.Helper()

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	history, err := db.GetHistory(context.Background(), "cerrado", farmID)
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	return history
}

// TestNewAnalyzeCmd tests the analyze command creation.
func TestNewAnalyzeCmd(t *testing.T) {
	t.Parallel()

	cmd := NewAnalyzeCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Name() != "analyze" {
			t.Errorf("expected name 'analyze', got %q", cmd.Name())
		}
	})

	t.Run("has long description", func(t *testing.T) {
		t.Parallel()
		if cmd.Long == "" {
			t.Error("expected non-empty long description")
		}
	})

	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{name: "cluster", shorthand: "C", defValue: ""},
		{name: "years", defValue: ""},
		{name: "project", defValue: ""},
		{name: "credentials", defValue: ""},
		{name: "dataset", defValue: ""},
		{name: "scale", defValue: "30"},
		{name: "max-pixels", defValue: "1e+13"},
		{name: "timeout", shorthand: "t", defValue: "2m0s"},
		{name: "concurrency", defValue: "4"},
		{name: "batch", shorthand: "b", defValue: "2"},
		{name: "map-from", defValue: "2020"},
		{name: "map-to", defValue: "2023"},
		{name: "config", shorthand: "c", defValue: ""},
		{name: "json", shorthand: "j", defValue: "false"},
		{name: "markdown", shorthand: "m", defValue: "false"},
		{name: "output", shorthand: "o", defValue: ""},
		{name: "pdf", defValue: ""},
		{name: "logo", defValue: ""},
		{name: "company", defValue: ""},
		{name: "no-save", defValue: "false"},
	}

	for _, tt := range tests {
		t.Run("has "+tt.name+" flag", func(t *testing.T) {
			t.Parallel()

			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("expected default %q, got %q", tt.defValue, flag.DefValue)
			}
		})
	}
}

// TestParseYears tests parsing of the --years flag.
func TestParseYears(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []int
		wantErr bool
	}{
		{name: "range", input: "2020-2023", want: []int{2020, 2021, 2022, 2023}},
		{name: "list", input: "2019,2021,2023", want: []int{2019, 2021, 2023}},
		{name: "mixed with spaces", input: "2015, 2020-2021", want: []int{2015, 2020, 2021}},
		{name: "single year", input: "2022", want: []int{2022}},
		{name: "single year range", input: "2022-2022", want: []int{2022}},
		{name: "order preserved", input: "2023,2001", want: []int{2023, 2001}},
		{name: "empty", input: "", wantErr: true},
		{name: "only commas", input: ",,", wantErr: true},
		{name: "not a number", input: "twenty", wantErr: true},
		{name: "descending range", input: "2023-2020", wantErr: true},
		{name: "open range", input: "2020-", wantErr: true},
		{name: "lossyear codes", input: "20-23", wantErr: true},
		{name: "huge range", input: "1-3000000", wantErr: true},
		{name: "five digit year", input: "2020-20230", wantErr: true},
		{name: "zero", input: "0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseYears(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidYears) {
					t.Errorf("expected ErrInvalidYears, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("years mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestPDFPath tests per-farm PDF file names.
func TestPDFPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		base   string
		farmID string
		farms  int
		want   string
	}{
		{name: "single farm keeps path", base: "out/report.pdf", farmID: "farm-1", farms: 1, want: "out/report.pdf"},
		{name: "several farms", base: "out/report.pdf", farmID: "farm-1", farms: 3, want: "out/report-farm-1.pdf"},
		{name: "osm id", base: "report.pdf", farmID: "way/123", farms: 2, want: "report-way_123.pdf"},
		{name: "no extension", base: "report", farmID: "f", farms: 2, want: "report-f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := pdfPath(tt.base, tt.farmID, tt.farms); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestBuildConfig tests configuration assembly from flags and the
// configuration file.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	writeConfig := func(t *testing.T) string {
		t.Helper()

		path := filepath.Join(t.TempDir(), configFileName)
		content := `defaults:
  project: file-project
  dataset: UMD/hansen/custom
  years: [2001, 2002]
  company: Example Trading
clusters:
  cerrado:
    source: geojson
    url: ./cerrado.geojson
`
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		return path
	}

	t.Run("applies file defaults", func(t *testing.T) {
		t.Parallel()

		cmd := NewAnalyzeCmd()
		if err := cmd.ParseFlags([]string{"-C", "cerrado", "-c", writeConfig(t)}); err != nil {
			t.Fatal(err)
		}
		cfg, err := buildConfig(cmd, []string{"farm-1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Project != "file-project" {
			t.Errorf("expected project from file, got %q", cfg.Project)
		}
		if cfg.Dataset != "UMD/hansen/custom" {
			t.Errorf("expected dataset from file, got %q", cfg.Dataset)
		}
		if cfg.CompanyName != "Example Trading" {
			t.Errorf("expected company from file, got %q", cfg.CompanyName)
		}
		if diff := cmp.Diff([]int{2001, 2002}, cfg.Years); diff != "" {
			t.Errorf("years mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"farm-1"}, cfg.FarmIDs); diff != "" {
			t.Errorf("farms mismatch (-want +got):\n%s", diff)
		}
		if !cfg.SaveToDB {
			t.Error("expected analyses to be saved by default")
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}
	})

	t.Run("flags override file defaults", func(t *testing.T) {
		t.Parallel()

		cmd := NewAnalyzeCmd()
		args := []string{
			"-C", "cerrado", "-c", writeConfig(t),
			"--project", "flag-project",
			"--years", "2022-2023",
			"--batch", "4",
			"--no-save",
			"--json",
		}
		if err := cmd.ParseFlags(args); err != nil {
			t.Fatal(err)
		}
		cfg, err := buildConfig(cmd, []string{"farm-1", "farm-2"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Project != "flag-project" {
			t.Errorf("expected project from flag, got %q", cfg.Project)
		}
		if diff := cmp.Diff([]int{2022, 2023}, cfg.Years); diff != "" {
			t.Errorf("years mismatch (-want +got):\n%s", diff)
		}
		if cfg.BatchSize != 4 {
			t.Errorf("expected batch size 4, got %d", cfg.BatchSize)
		}
		if cfg.SaveToDB {
			t.Error("expected --no-save to disable the database")
		}
		if !cfg.JSONReport {
			t.Error("expected JSON report")
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		cmd := NewAnalyzeCmd()
		missing := filepath.Join(t.TempDir(), "missing.yaml")
		if err := cmd.ParseFlags([]string{"-c", missing}); err != nil {
			t.Fatal(err)
		}
		_, err := buildConfig(cmd, nil)
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("invalid years", func(t *testing.T) {
		t.Parallel()

		cmd := NewAnalyzeCmd()
		if err := cmd.ParseFlags([]string{"--years", "soon"}); err != nil {
			t.Fatal(err)
		}
		_, err := buildConfig(cmd, nil)
		if !errors.Is(err, ErrInvalidYears) {
			t.Errorf("expected ErrInvalidYears, got %v", err)
		}
	})
}

// TestRunAnalyzeCmdValidation tests that invalid invocations fail before
// any remote work.
func TestRunAnalyzeCmdValidation(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), configFileName)
	content := "defaults:\n  project: p\nclusters:\n  cerrado:\n    url: ./x.geojson\n"
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	tests := []struct {
		name string
		args []string
		want error
	}{
		{name: "no cluster", args: []string{"-c", configPath, "farm-1"}, want: config.ErrNoCluster},
		{name: "no farm", args: []string{"-c", configPath, "-C", "cerrado"}, want: config.ErrNoFarm},
		{name: "conflicting formats", args: []string{"-c", configPath, "-C", "cerrado", "--json", "--markdown", "farm-1"}, want: config.ErrConflictingReportFormats},
		{name: "unknown cluster", args: []string{"-c", configPath, "-C", "pampa", "farm-1"}, want: boundary.ErrUnknownCluster},
		{name: "bad map range", args: []string{"-c", configPath, "-C", "cerrado", "--map-from", "2023", "--map-to", "2020", "farm-1"}, want: config.ErrInvalidMapRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := NewAnalyzeCmd()
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// TestRunAnalyze tests end-to-end analysis against the synthetic grid.
func TestRunAnalyze(t *testing.T) {
	t.Parallel()

	t.Run("prints report and records analysis", func(t *testing.T) {
		t.Parallel()

		deps, stdout := testDeps(t)
		cfg := testConfig(t, "farm-1")

		if err := runAnalyze(context.Background(), cfg, deps); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := stdout.String()
		for _, want := range []string{"DEFORESTATION REPORT", "farm-1", "YEARLY FOREST LOSS", "2022", "HIGH"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected report to contain %q", want)
			}
		}

		history := storedHistory(t, cfg.DBDir, "farm-1")
		if len(history) != 1 {
			t.Fatalf("expected 1 stored analysis, got %d", len(history))
		}
		if got := history[0].TotalLossAcres; got < 9.999 || got > 10.001 {
			t.Errorf("expected 10 acres of stored loss, got %v", got)
		}
		if history[0].Risk != model.RiskHigh {
			t.Errorf("expected HIGH risk, got %s", history[0].Risk)
		}
	})

	t.Run("JSON report", func(t *testing.T) {
		t.Parallel()

		deps, stdout := testDeps(t)
		cfg := testConfig(t, "farm-1")
		cfg.JSONReport = true
		cfg.SaveToDB = false
		cfg.Years = []int{2021, 2022}

		if err := runAnalyze(context.Background(), cfg, deps); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got report.JSONReport
		if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.Analysis == nil {
			t.Fatal("expected analysis in report")
		}
		if diff := cmp.Diff([]int{2021, 2022}, got.Analysis.Result.Years()); diff != "" {
			t.Errorf("years mismatch (-want +got):\n%s", diff)
		}
		if got.Version == "" {
			t.Error("expected version")
		}
		if _, err := os.Stat(filepath.Join(cfg.DBDir, database.FileName)); !os.IsNotExist(err) {
			t.Error("expected no database with SaveToDB disabled")
		}
	})

	t.Run("writes report and PDF files", func(t *testing.T) {
		t.Parallel()

		deps, stdout := testDeps(t)
		cfg := testConfig(t, "farm-1", "farm-2")
		dir := t.TempDir()
		cfg.MarkdownReport = true
		cfg.ReportFile = filepath.Join(dir, "reports", "report.md")
		cfg.PDFFile = filepath.Join(dir, "pdf", "report.pdf")
		cfg.CompanyName = "Example Trading"

		if err := runAnalyze(context.Background(), cfg, deps); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stdout.Len() != 0 {
			t.Errorf("expected nothing on stdout, got %q", stdout.String())
		}

		md, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		first := strings.Index(string(md), "# Deforestation Report of farm-1")
		second := strings.Index(string(md), "# Deforestation Report of farm-2")
		if first < 0 || second < 0 || first > second {
			t.Errorf("expected both reports in input order, got indexes %d and %d", first, second)
		}

		for _, farm := range []string{"farm-1", "farm-2"} {
			data, err := os.ReadFile(filepath.Join(dir, "pdf", "report-"+farm+".pdf"))
			if err != nil {
				t.Fatalf("failed to read PDF of %s: %v", farm, err)
			}
			if !bytes.HasPrefix(data, []byte("%PDF-")) {
				t.Errorf("expected a PDF document for %s", farm)
			}
		}
	})

	t.Run("failed farm is reported and not recorded", func(t *testing.T) {
		t.Parallel()

		deps, stdout := testDeps(t)
		cfg := testConfig(t, "farm-1", "farm-404")

		err := runAnalyze(context.Background(), cfg, deps)
		if !errors.Is(err, boundary.ErrFarmNotFound) {
			t.Fatalf("expected ErrFarmNotFound, got %v", err)
		}
		if !strings.Contains(err.Error(), "1 of 2 farms (farm-404)") {
			t.Errorf("unexpected error message %q", err.Error())
		}

		output := stdout.String()
		if !strings.Contains(output, "ERROR") {
			t.Error("expected the failed farm to be reported")
		}
		if len(storedHistory(t, cfg.DBDir, "farm-1")) != 1 {
			t.Error("expected the successful farm to be recorded")
		}
		if len(storedHistory(t, cfg.DBDir, "farm-404")) != 0 {
			t.Error("expected the failed farm not to be recorded")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		deps, _ := testDeps(t)
		cfg := testConfig(t, "farm-1")
		cfg.SaveToDB = false

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := runAnalyze(ctx, cfg, deps); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("missing logo", func(t *testing.T) {
		t.Parallel()

		deps, _ := testDeps(t)
		cfg := testConfig(t, "farm-1")
		cfg.PDFFile = filepath.Join(t.TempDir(), "report.pdf")
		cfg.LogoFile = filepath.Join(t.TempDir(), "missing.png")

		if err := runAnalyze(context.Background(), cfg, deps); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected os.ErrNotExist, got %v", err)
		}
	})
}
