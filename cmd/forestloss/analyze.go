package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/forestloss/internal/boundary"
	"github.com/nao1215/forestloss/internal/config"
	"github.com/nao1215/forestloss/internal/database"
	"github.com/nao1215/forestloss/internal/earthengine"
	seclog "github.com/nao1215/forestloss/internal/log"
	"github.com/nao1215/forestloss/internal/loss"
	"github.com/nao1215/forestloss/internal/model"
	"github.com/nao1215/forestloss/internal/pipeline"
	"github.com/nao1215/forestloss/internal/report"
	"github.com/spf13/cobra"
)

// ErrInvalidYears is returned when --years cannot be parsed.
var ErrInvalidYears = errors.New("invalid --years value")

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <farm-id>...",
		Short: "Compute yearly forest loss for one or more farms",
		Long: `Analyze looks up the boundary of each farm, computes the forest loss
inside it for every requested year on Google Earth Engine, and prints a
report with the deforested acres per year and a risk classification.

The boundary source of the cluster is configured in .forestloss
(see 'forestloss init').

Examples:
  # Analyze one farm of the hassan cluster
  forestloss analyze -C hassan farm-17

  # Analyze three farms, two at a time, for a custom range of years
  forestloss analyze -C hassan --years 2018-2023 --batch 2 farm-1 farm-2 farm-3

  # Write a Markdown report and a PDF report
  forestloss analyze -C hassan --markdown -o report.md --pdf report.pdf farm-17

  # Output JSON without recording the analysis in the history database
  forestloss analyze -C hassan --json --no-save farm-17`,
		Args: cobra.ArbitraryArgs,
		RunE: runAnalyzeCmd,
	}

	// Target flags
	cmd.Flags().StringP("cluster", "C", "",
		"Cluster (growing region) the farms belong to")
	cmd.Flags().String("years", "",
		"Years to analyze as a range (2020-2023) or a list (2019,2021) (default: 2020-2023)")

	// Earth Engine flags
	cmd.Flags().String("project", "",
		"Google Cloud project for Earth Engine requests")
	cmd.Flags().String("credentials", "",
		"Service account key or user credentials file")
	cmd.Flags().String("dataset", "",
		"Earth Engine asset id of the forest change dataset (default: "+loss.DefaultDataset+")")
	cmd.Flags().Float64("scale", config.DefaultScale,
		"Reduction scale in meters")
	cmd.Flags().Float64("max-pixels", config.DefaultMaxPixels,
		"Maximum number of pixels in one reduction")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each Earth Engine request")
	cmd.Flags().Int("concurrency", config.DefaultConcurrency,
		"Number of yearly reductions in flight per farm")

	// Batch analysis flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of farms analyzed concurrently")

	// Loss map flags
	cmd.Flags().Int("map-from", config.DefaultFromYear,
		"First year shown on the loss map")
	cmd.Flags().Int("map-to", config.DefaultToYear,
		"Last year shown on the loss map")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .forestloss in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().String("pdf", "",
		"Also write a PDF report to this path (the farm id is appended for several farms)")
	cmd.Flags().String("logo", "",
		"PNG or JPEG logo for the PDF header")
	cmd.Flags().String("company", "",
		"Company name for the PDF footer")
	cmd.Flags().Bool("no-save", false,
		"Do not record the analysis in the history database")

	return cmd
}

// runAnalyzeCmd executes the analyze command.
func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if _, ok := cfg.File.Cluster(cfg.Cluster); !ok {
		return fmt.Errorf("%w: %s (configured clusters: %s)", boundary.ErrUnknownCluster,
			cfg.Cluster, clusterList(cfg.File))
	}

	logger := seclog.NewSecureLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	deps, err := newAnalyzeDeps(cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()
	deps.stdout = cmd.OutOrStdout()
	deps.stderr = cmd.ErrOrStderr()

	return runAnalyze(ctx, cfg, deps)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags and the
// configuration file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.Cluster, err = flags.GetString("cluster"); err != nil {
		return nil, err
	}
	yearsValue, err := flags.GetString("years")
	if err != nil {
		return nil, err
	}
	yearsSet := flags.Changed("years")
	if yearsSet {
		if cfg.Years, err = parseYears(yearsValue); err != nil {
			return nil, err
		}
	}

	if cfg.Project, err = flags.GetString("project"); err != nil {
		return nil, err
	}
	if cfg.CredentialsFile, err = flags.GetString("credentials"); err != nil {
		return nil, err
	}
	if cfg.Dataset, err = flags.GetString("dataset"); err != nil {
		return nil, err
	}
	if cfg.Scale, err = flags.GetFloat64("scale"); err != nil {
		return nil, err
	}
	if cfg.MaxPixels, err = flags.GetFloat64("max-pixels"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.MapFromYear, err = flags.GetInt("map-from"); err != nil {
		return nil, err
	}
	if cfg.MapToYear, err = flags.GetInt("map-to"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	// If the user explicitly specified a config file path, error if not found.
	// If no path was specified, an empty configuration is used.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		cfg.File, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case explicitConfigPath:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.File = &config.File{Clusters: make(map[string]config.ClusterConfig)}
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.PDFFile, err = flags.GetString("pdf"); err != nil {
		return nil, err
	}
	if cfg.LogoFile, err = flags.GetString("logo"); err != nil {
		return nil, err
	}
	if cfg.CompanyName, err = flags.GetString("company"); err != nil {
		return nil, err
	}
	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave

	cfg.ApplyDefaults(cfg.File.Defaults, yearsSet)
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.FarmIDs = args

	return cfg, nil
}

// clusterList formats the configured cluster names for error messages.
func clusterList(cf *config.File) string {
	names := cf.ClusterNames()
	if len(names) == 0 {
		return "none, run 'forestloss init'"
	}
	return strings.Join(names, ", ")
}

// parseYears parses "2020-2023" or "2019,2021,2023". Ranges and single
// years can be mixed: "2015,2020-2022".
func parseYears(s string) ([]int, error) {
	var years []int
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidYears, part)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(to)); err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidYears, part)
			}
		}
		if !config.ValidYear(first) || !config.ValidYear(last) {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidYears, part, config.ErrInvalidYear)
		}
		if first > last {
			return nil, fmt.Errorf("%w: %q is a descending range", ErrInvalidYears, part)
		}
		for y := first; y <= last; y++ {
			years = append(years, y)
		}
	}
	if len(years) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidYears, s)
	}
	return years, nil
}

// analyzeDeps holds the collaborators of an analysis run. Tests replace
// the boundary source and the loss backend.
type analyzeDeps struct {
	source  boundary.Source
	backend loss.Backend
	logger  *slog.Logger
	stdout  io.Writer
	stderr  io.Writer
	closers []io.Closer
}

// newAnalyzeDeps builds the boundary sources of the configuration file
// and the Earth Engine backend.
func newAnalyzeDeps(cfg *config.Config, logger *slog.Logger) (*analyzeDeps, error) {
	registry, err := boundary.NewRegistryFromFile(cfg.File, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up boundary sources: %w", err)
	}

	session := earthengine.NewSession(cfg.Project,
		earthengine.WithCredentialsFile(cfg.CredentialsFile),
		earthengine.WithSessionLogger(logger),
	)

	return &analyzeDeps{
		source:  registry,
		backend: earthengine.NewBackend(session, earthengine.WithLogger(logger)),
		logger:  logger,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		closers: []io.Closer{registry},
	}, nil
}

// close releases resources held by the boundary sources.
func (d *analyzeDeps) close() {
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			d.logger.Warn("failed to close resource", "error", err)
		}
	}
}

// runAnalyze analyzes every farm of cfg and writes the reports.
// It returns an error when any analysis failed; the reports of the other
// farms are still written and saved.
func runAnalyze(ctx context.Context, cfg *config.Config, deps *analyzeDeps) error {
	logger := deps.logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("starting analysis",
		"cluster", cfg.Cluster,
		"farms", cfg.FarmIDs,
		"years", cfg.Years,
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	var logo []byte
	if cfg.PDFFile != "" && cfg.LogoFile != "" {
		var err error
		logo, err = os.ReadFile(cfg.LogoFile)
		if err != nil {
			return fmt.Errorf("failed to read logo: %w", err)
		}
	}

	mask, err := loss.NewVisualizationMask(cfg.Dataset, cfg.MapFromYear, cfg.MapToYear)
	if err != nil {
		return fmt.Errorf("invalid loss map range: %w", err)
	}

	// Open database connection if saving is enabled
	var db *database.HistoryDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	aggregator := loss.NewAggregator(deps.backend,
		loss.WithDataset(cfg.Dataset),
		loss.WithScale(cfg.Scale),
		loss.WithMaxPixels(cfg.MaxPixels),
		loss.WithRequestTimeout(cfg.Timeout),
		loss.WithConcurrency(cfg.Concurrency),
		loss.WithLogger(logger),
	)

	renderOpts := []pipeline.RenderStepOption{
		pipeline.WithImageSize(cfg.MapSize),
		pipeline.WithRenderLogger(logger),
	}
	if mapper, ok := deps.backend.(loss.LossMapper); ok {
		renderOpts = append(renderOpts, pipeline.WithLossMap(mapper, mask))
	}

	bp := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline {
			p := pipeline.New(pipeline.WithLogger(logger))
			p.AddSteps(
				pipeline.NewBoundaryStep(deps.source, logger),
				pipeline.NewLossStep(aggregator, cfg.Years, logger),
				pipeline.NewRenderStep(renderOpts...),
			)
			return p
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	fmt.Fprintf(deps.stderr, "Analyzing %d farm(s) of %s (concurrency: %d)...\n",
		len(cfg.FarmIDs), cfg.Cluster, cfg.BatchSize)
	startTime := time.Now()

	// Results are collected in input order so that reports are stable.
	results := make([]*model.Analysis, len(cfg.FarmIDs))
	var mu sync.Mutex
	done := 0
	batchErr := bp.ProcessBatchWithCallback(ctx, cfg.Cluster, cfg.FarmIDs, func(analysis *model.Analysis, index int) {
		mu.Lock()
		defer mu.Unlock()

		results[index] = analysis
		done++
		status := "completed"
		if !analysis.Succeeded() {
			status = "failed"
		}
		fmt.Fprintf(deps.stderr, "[%d/%d] Analysis %s: %s\n", done, len(cfg.FarmIDs), status, analysis.FarmID)
	})

	fmt.Fprintf(deps.stderr, "Analysis finished in %s\n\n", time.Since(startTime).Round(time.Millisecond))

	analyses := make([]*model.Analysis, 0, len(results))
	for _, a := range results {
		if a != nil {
			analyses = append(analyses, a)
		}
	}

	if err := outputReports(cfg, analyses, deps.stdout); err != nil {
		return err
	}

	var failed []string
	var firstErr error
	for _, a := range analyses {
		if !a.Succeeded() {
			failed = append(failed, a.FarmID)
			if firstErr == nil {
				firstErr = a.Error
			}
			continue
		}

		if cfg.PDFFile != "" {
			path := pdfPath(cfg.PDFFile, a.FarmID, len(cfg.FarmIDs))
			if err := writePDF(path, a, logo, cfg.CompanyName); err != nil {
				return err
			}
			fmt.Fprintf(deps.stderr, "PDF report written to %s\n", path)
		}

		if err := saveAnalysis(ctx, db, a, logger); err != nil {
			logger.Error("failed to save analysis", "farm", a.FarmID, "error", err)
		}
	}

	if batchErr != nil {
		return fmt.Errorf("analysis interrupted: %w", batchErr)
	}
	if len(failed) > 0 {
		return fmt.Errorf("analysis failed for %d of %d farms (%s): %w",
			len(failed), len(cfg.FarmIDs), strings.Join(failed, ", "), firstErr)
	}
	return nil
}

// outputReports writes the reports of all analyses in the requested format.
func outputReports(cfg *config.Config, analyses []*model.Analysis, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports locate farms precisely, so keep them private.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	for _, a := range analyses {
		if _, err := writer.Write(a); err != nil {
			return fmt.Errorf("failed to write report for %s: %w", a.FarmID, err)
		}
	}
	return nil
}

// pdfPath returns the PDF path of a farm. With several farms the farm id
// is inserted before the extension: report.pdf becomes report-farm-1.pdf.
func pdfPath(base, farmID string, farms int) string {
	if farms <= 1 {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + sanitizeFileName(farmID) + ext
}

// sanitizeFileName replaces path separators in farm ids such as "way/123".
func sanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, s)
}

// writePDF renders the PDF report of one analysis to path.
func writePDF(path string, analysis *model.Analysis, logo []byte, company string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create PDF directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create PDF file: %w", err)
	}
	defer f.Close()

	w := report.NewPDFWriter(f, report.WithLogo(logo), report.WithCompany(company))
	if _, err := w.Write(analysis); err != nil {
		return fmt.Errorf("failed to write PDF report for %s: %w", analysis.FarmID, err)
	}
	return nil
}

// saveAnalysis records a completed analysis in the history database.
// If db is nil, this function is a no-op.
func saveAnalysis(ctx context.Context, db *database.HistoryDB, analysis *model.Analysis, logger *slog.Logger) error {
	if db == nil {
		return nil
	}

	if err := db.SaveAnalysis(ctx, analysis); err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	logger.Info("analysis saved to database", "cluster", analysis.Cluster, "farm", analysis.FarmID)
	return nil
}
