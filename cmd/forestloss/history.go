package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/forestloss/internal/config"
	"github.com/nao1215/forestloss/internal/database"
	"github.com/nao1215/forestloss/internal/model"
	"github.com/nao1215/forestloss/internal/report"
	"github.com/spf13/cobra"
)

// Constants for risk direction.
const (
	riskDirectionWorsened  = "worsened"
	riskDirectionImproved  = "improved"
	riskDirectionUnchanged = "unchanged"
)

// acresEpsilon is the smallest change in acres treated as a difference.
// Reports round to two decimals.
const acresEpsilon = 0.005

// historyTimeLayout is the date format of history listings.
const historyTimeLayout = "2006-01-02 15:04:05"

// NewHistoryCmd creates the history command.
// This command reads analyses recorded in the history database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [cluster] [farm-id]",
		Short: "Show and compare recorded analyses",
		Long: `History reads the analyses recorded by 'forestloss analyze'.

Without flags, it lists every recorded analysis of a farm, newest first.
With --compare, it compares the latest two analyses of the farm and shows
the change in loss per year and in risk.

Stored results are only displayed; they are never reused by later analyses.

Examples:
  # List all farms with recorded analyses
  forestloss history --list-farms

  # List farms of one cluster
  forestloss history --list-farms hassan

  # List recorded analyses of a farm
  forestloss history hassan farm-17

  # Show a recorded analysis
  forestloss history --id 0b6f0c7e-1d6a-4c1e-9d7e-3f1f6f0f5a11

  # Compare the latest two analyses of a farm in JSON format
  forestloss history --compare --json hassan farm-17`,
		Args: cobra.MaximumNArgs(2),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list-farms", "L", false,
		"List all farms with recorded analyses (optionally of one cluster)")
	cmd.Flags().StringP("id", "i", "",
		"Show the recorded analysis with this ID")
	cmd.Flags().Bool("compare", false,
		"Compare the latest two analyses of the farm")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")

	return cmd
}

// historyOptions holds the parsed flags and arguments of the history command.
type historyOptions struct {
	listFarms bool
	id        string
	compare   bool
	json      bool
	cluster   string
	farmID    string
}

// parseHistoryOptions validates flags and arguments before the database is
// opened, so that usage errors never touch the database.
func parseHistoryOptions(cmd *cobra.Command, args []string) (historyOptions, error) {
	var opts historyOptions
	var err error

	if opts.listFarms, err = cmd.Flags().GetBool("list-farms"); err != nil {
		return opts, err
	}
	if opts.id, err = cmd.Flags().GetString("id"); err != nil {
		return opts, err
	}
	if opts.compare, err = cmd.Flags().GetBool("compare"); err != nil {
		return opts, err
	}
	if opts.json, err = cmd.Flags().GetBool("json"); err != nil {
		return opts, err
	}

	modes := 0
	for _, on := range []bool{opts.listFarms, opts.id != "", opts.compare} {
		if on {
			modes++
		}
	}
	if modes > 1 {
		return opts, errors.New("--list-farms, --id and --compare cannot be used together")
	}

	switch {
	case opts.listFarms:
		if len(args) > 1 {
			return opts, errors.New("--list-farms takes at most a cluster argument")
		}
		if len(args) == 1 {
			opts.cluster = args[0]
		}
	case opts.id != "":
		if len(args) > 0 {
			return opts, errors.New("--id takes no arguments")
		}
	default:
		if len(args) != 2 {
			return opts, errors.New("cluster and farm id are required (use --list-farms to see recorded farms)")
		}
		opts.cluster, opts.farmID = args[0], args[1]
	}
	return opts, nil
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseHistoryOptions(cmd, args)
	if err != nil {
		return err
	}

	db, err := database.Open(config.XDGDataDir(), database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return runHistory(cmd.Context(), db, opts, cmd.OutOrStdout())
}

// runHistory dispatches to the selected history operation.
func runHistory(ctx context.Context, db *database.HistoryDB, opts historyOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	switch {
	case opts.listFarms:
		return listFarms(ctx, db, out, opts.cluster, opts.json)
	case opts.id != "":
		return showAnalysis(ctx, db, out, opts.id, opts.json)
	case opts.compare:
		return runComparison(ctx, db, out, opts.cluster, opts.farmID, opts.json)
	default:
		return listHistory(ctx, db, out, opts.cluster, opts.farmID, opts.json)
	}
}

// listFarms lists all farms that have analyses in the database.
func listFarms(ctx context.Context, db *database.HistoryDB, out io.Writer, cluster string, jsonOutput bool) error {
	farms, err := db.ListFarms(ctx, cluster)
	if err != nil {
		return fmt.Errorf("failed to list farms: %w", err)
	}

	if jsonOutput {
		if farms == nil {
			farms = []database.FarmRecord{}
		}
		return writeJSON(out, farms)
	}

	if len(farms) == 0 {
		fmt.Fprintln(out, "No analyzed farms found in the database.")
		fmt.Fprintln(out, "\nUse 'forestloss analyze -C <cluster> <farm-id>' to analyze a farm.")
		return nil
	}

	fmt.Fprintf(out, "Analyzed farms (%d):\n\n", len(farms))
	fmt.Fprintf(out, "  %-16s  %-20s  %-8s  %s\n", "Cluster", "Farm", "Analyses", "Last Analyzed")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 70))
	for _, f := range farms {
		fmt.Fprintf(out, "  %-16s  %-20s  %-8d  %s\n",
			f.Cluster, f.FarmID, f.Analyses, formatHistoryTime(f.LastAnalyzed))
	}
	fmt.Fprintln(out, "\nUse 'forestloss history <cluster> <farm-id>' to see the analyses of a farm.")

	return nil
}

// listHistory lists all analyses of a farm.
func listHistory(ctx context.Context, db *database.HistoryDB, out io.Writer, cluster, farmID string, jsonOutput bool) error {
	history, err := db.GetHistory(ctx, cluster, farmID)
	if err != nil {
		return fmt.Errorf("failed to get analysis history: %w", err)
	}

	if jsonOutput {
		if history == nil {
			history = []database.AnalysisMetadata{}
		}
		return writeJSON(out, history)
	}

	if len(history) == 0 {
		fmt.Fprintf(out, "No analyses found for %s/%s\n", cluster, farmID)
		fmt.Fprintln(out, "\nUse 'forestloss analyze' to analyze this farm.")
		return nil
	}

	fmt.Fprintf(out, "Analysis history for %s/%s (%d analyses):\n\n", cluster, farmID, len(history))
	fmt.Fprintf(out, "  %-36s  %-19s  %14s  %s\n", "ID", "Date", "Loss (acres)", "Risk")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 82))
	for _, meta := range history {
		fmt.Fprintf(out, "  %-36s  %-19s  %14.2f  %s\n",
			meta.ID, formatHistoryTime(meta.Timestamp), meta.TotalLossAcres, meta.Risk)
	}

	fmt.Fprintln(out, "\nUse 'forestloss history --compare <cluster> <farm-id>' to compare the latest two analyses.")
	fmt.Fprintln(out, "Use 'forestloss history --id <id>' to show an analysis.")

	return nil
}

// showAnalysis prints a stored analysis as a report.
func showAnalysis(ctx context.Context, db *database.HistoryDB, out io.Writer, id string, jsonOutput bool) error {
	analysis, err := db.GetAnalysisByID(ctx, id)
	if err != nil {
		return err
	}

	var w report.Writer
	if jsonOutput {
		w = report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	} else {
		w = report.NewSimpleWriter(out, report.WithVerbose(true))
	}
	_, err = w.Write(analysis)
	return err
}

// runComparison compares the latest two analyses of a farm.
func runComparison(ctx context.Context, db *database.HistoryDB, out io.Writer, cluster, farmID string, jsonOutput bool) error {
	analyses, err := db.GetLatestAnalyses(ctx, cluster, farmID, 2)
	if err != nil {
		return fmt.Errorf("failed to get analyses: %w", err)
	}

	if len(analyses) == 0 {
		return fmt.Errorf("no analyses found for %s/%s", cluster, farmID)
	}
	if len(analyses) < 2 {
		return fmt.Errorf("at least 2 analyses are required for comparison (found %d)", len(analyses))
	}

	comparison := compareAnalyses(analyses[1], analyses[0])

	if jsonOutput {
		return writeJSON(out, comparison)
	}
	outputComparisonText(out, comparison)
	return nil
}

// ComparisonResult holds the result of comparing two analyses of a farm.
type ComparisonResult struct {
	// Cluster and FarmID identify the farm.
	Cluster string `json:"cluster"`
	FarmID  string `json:"farm_id"`

	// Previous is the older analysis.
	Previous AnalysisSnapshot `json:"previous"`

	// Current is the newer analysis.
	Current AnalysisSnapshot `json:"current"`

	// Years holds one entry per year present in either analysis, ascending.
	Years []YearDelta `json:"years"`

	// TotalDelta is the change in total loss.
	TotalDelta float64 `json:"total_delta"`

	// DatasetChanged is true when the analyses queried different datasets.
	DatasetChanged bool `json:"dataset_changed"`

	// RiskChange describes the overall change in risk.
	RiskChange RiskChange `json:"risk_change"`
}

// AnalysisSnapshot contains the figures of one analysis used in a comparison.
type AnalysisSnapshot struct {
	ID          string          `json:"id"`
	AnalyzedAt  time.Time       `json:"analyzed_at"`
	Dataset     string          `json:"dataset"`
	RegionAcres float64         `json:"region_acres"`
	TotalAcres  float64         `json:"total_acres"`
	LossShare   float64         `json:"loss_share"`
	Risk        model.RiskLevel `json:"risk"`
	RiskText    string          `json:"risk_text"`
}

// YearDelta is the change in loss of one year. A nil value means the year
// was not part of that analysis, and Delta is then nil as well.
type YearDelta struct {
	Year     int      `json:"year"`
	Previous *float64 `json:"previous,omitempty"`
	Current  *float64 `json:"current,omitempty"`
	Delta    *float64 `json:"delta,omitempty"`
}

// RiskChange describes the change in risk between two analyses.
type RiskChange struct {
	// Direction is "improved", "worsened", or "unchanged".
	Direction string `json:"direction"`

	// LevelDelta is the change in risk level.
	LevelDelta int `json:"level_delta"`
}

// compareAnalyses compares two analyses and generates a comparison result.
func compareAnalyses(previous, current *model.Analysis) *ComparisonResult {
	result := &ComparisonResult{
		Cluster:        current.Cluster,
		FarmID:         current.FarmID,
		Previous:       snapshot(previous),
		Current:        snapshot(current),
		DatasetChanged: previous.Dataset != current.Dataset,
	}

	years := append(previous.Result.Years(), current.Result.Years()...)
	slices.Sort(years)
	years = slices.Compact(years)

	for _, year := range years {
		d := YearDelta{Year: year}
		if v, ok := previous.Result.Lookup(year); ok {
			d.Previous = &v
		}
		if v, ok := current.Result.Lookup(year); ok {
			d.Current = &v
		}
		if d.Previous != nil && d.Current != nil {
			delta := *d.Current - *d.Previous
			d.Delta = &delta
		}
		result.Years = append(result.Years, d)
	}

	result.TotalDelta = result.Current.TotalAcres - result.Previous.TotalAcres
	result.RiskChange = calculateRiskChange(result.Previous, result.Current)

	return result
}

// snapshot extracts the comparison figures of an analysis.
func snapshot(a *model.Analysis) AnalysisSnapshot {
	return AnalysisSnapshot{
		ID:          a.ID,
		AnalyzedAt:  a.StartedAt,
		Dataset:     a.Dataset,
		RegionAcres: a.RegionAcres,
		TotalAcres:  a.Summary.TotalAcres,
		LossShare:   a.Summary.LossShare,
		Risk:        a.Summary.Risk,
		RiskText:    a.Summary.Risk.String(),
	}
}

// calculateRiskChange calculates the change in risk between two analyses.
// The risk level decides; within the same level the share of lost farm
// area does.
func calculateRiskChange(previous, current AnalysisSnapshot) RiskChange {
	change := RiskChange{LevelDelta: int(current.Risk) - int(previous.Risk)}

	switch {
	case change.LevelDelta > 0:
		change.Direction = riskDirectionWorsened
	case change.LevelDelta < 0:
		change.Direction = riskDirectionImproved
	case current.TotalAcres-previous.TotalAcres > acresEpsilon && current.LossShare > previous.LossShare:
		change.Direction = riskDirectionWorsened
	case previous.TotalAcres-current.TotalAcres > acresEpsilon && current.LossShare < previous.LossShare:
		change.Direction = riskDirectionImproved
	default:
		change.Direction = riskDirectionUnchanged
	}

	return change
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(out io.Writer, result *ComparisonResult) {
	fmt.Fprintf(out, "Analysis Comparison: %s/%s\n", result.Cluster, result.FarmID)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nRisk Status: %s (%s -> %s)\n",
		formatRiskDirection(result.RiskChange.Direction),
		result.Previous.RiskText, result.Current.RiskText)

	fmt.Fprintf(out, "\nPrevious analysis: %s  %s\n", formatHistoryTime(result.Previous.AnalyzedAt), result.Previous.ID)
	fmt.Fprintf(out, "Current analysis:  %s  %s\n", formatHistoryTime(result.Current.AnalyzedAt), result.Current.ID)
	if result.DatasetChanged {
		fmt.Fprintf(out, "\nNote: the analyses queried different datasets (%s -> %s)\n",
			result.Previous.Dataset, result.Current.Dataset)
	}

	fmt.Fprintln(out, "\nForest Loss (acres):")
	fmt.Fprintf(out, "  %-8s  %12s  %12s  %12s\n", "Year", "Previous", "Current", "Change")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 50))
	for _, y := range result.Years {
		fmt.Fprintf(out, "  %-8s  %12s  %12s  %12s\n",
			strconv.Itoa(y.Year), formatOptional(y.Previous), formatOptional(y.Current), formatOptionalDelta(y.Delta))
	}
	fmt.Fprintln(out, "  "+strings.Repeat("-", 50))
	fmt.Fprintf(out, "  %-8s  %12.2f  %12.2f  %12s\n", "Total",
		result.Previous.TotalAcres, result.Current.TotalAcres, formatDelta(result.TotalDelta))
}

// formatRiskDirection formats the risk change direction for display.
func formatRiskDirection(direction string) string {
	switch direction {
	case riskDirectionImproved:
		return "IMPROVED (risk decreased)"
	case riskDirectionWorsened:
		return "WORSENED (risk increased)"
	default:
		return "UNCHANGED"
	}
}

// formatDelta formats a change in acres with sign for display.
func formatDelta(delta float64) string {
	if math.Abs(delta) < acresEpsilon {
		return "0.00"
	}
	return fmt.Sprintf("%+.2f", delta)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func formatOptionalDelta(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatDelta(*v)
}

// formatHistoryTime formats a stored timestamp in local time.
func formatHistoryTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(historyTimeLayout)
}

// writeJSON writes v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
