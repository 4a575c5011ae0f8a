package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/forestloss/internal/loss"
)

// Default configuration values.
const (
	// DefaultFromYear and DefaultToYear bound the analyzed years. They match
	// the EUDR reference window the tool was built for.
	DefaultFromYear = 2020
	DefaultToYear   = 2023

	// MinYear and MaxYear bound accepted years to four digits, so a
	// two-digit lossyear code is not mistaken for a calendar year.
	MinYear = 1000
	MaxYear = 9999

	// DefaultScale is the native 30 m resolution of the Hansen dataset.
	// Coarser scales are faster but undercount small clearings.
	DefaultScale = loss.DefaultScale

	// DefaultMaxPixels lets a reduction cover any realistic farm.
	DefaultMaxPixels = loss.DefaultMaxPixels

	// DefaultTimeout bounds a single Earth Engine request. Reductions over
	// large estates can take over a minute on the server.
	DefaultTimeout = loss.DefaultRequestTimeout

	// DefaultConcurrency is the number of per-year reductions in flight.
	// Earth Engine throttles interactive requests per project, so this is
	// kept low.
	DefaultConcurrency = loss.DefaultConcurrency

	// DefaultBatchSize is the number of farms analyzed at once.
	DefaultBatchSize = 2

	// DefaultMapSize is the width and height in pixels of rendered maps.
	DefaultMapSize = 512

	// AppName is the application name used for XDG directory paths.
	AppName = "forestloss"
)

// Config holds all configuration options of an analysis run.
// It is populated from CLI flags, completed with the defaults of the
// configuration file, and passed through the application explicitly.
type Config struct {
	// Cluster is the growing region the farms belong to. It selects the
	// boundary source from the configuration file.
	Cluster string

	// FarmIDs lists the farms to analyze.
	FarmIDs []string

	// Years lists the calendar years to compute loss for, in report order.
	Years []int

	// Project is the Google Cloud project used for Earth Engine requests.
	Project string

	// CredentialsFile is a service account key or user credentials file.
	// When empty, credentials come from the environment.
	CredentialsFile string

	// Dataset is the Earth Engine asset id of the loss raster.
	// Empty means loss.DefaultDataset.
	Dataset string

	// Scale is the reduction scale in meters.
	Scale float64

	// MaxPixels caps the number of pixels in one reduction.
	MaxPixels float64

	// Timeout is the timeout of each Earth Engine request.
	Timeout time.Duration

	// Concurrency is the number of per-year reductions in flight.
	Concurrency int

	// BatchSize is the number of farms analyzed concurrently.
	BatchSize int

	// MapFromYear and MapToYear bound the loss shown on the loss map.
	// They are independent of Years.
	MapFromYear int
	MapToYear   int

	// MapSize is the pixel size of rendered maps and charts.
	MapSize int

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, .forestloss is searched in the current and home directories.
	ConfigFilePath string

	// File holds the loaded configuration file.
	File *File

	// JSONReport selects JSON output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file for the text, JSON or Markdown report.
	// When empty, the report goes to stdout.
	ReportFile string

	// PDFFile is the output path of the PDF report. With several farms the
	// farm id is inserted before the extension.
	PDFFile string

	// LogoFile is an optional PNG or JPEG shown in the PDF header.
	LogoFile string

	// CompanyName is printed in the PDF footer.
	CompanyName string

	// DBDir is the directory of the history database.
	DBDir string

	// SaveToDB records completed analyses in the history database.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Years:       DefaultYears(),
		Scale:       DefaultScale,
		MaxPixels:   DefaultMaxPixels,
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
		BatchSize:   DefaultBatchSize,
		MapFromYear: DefaultFromYear,
		MapToYear:   DefaultToYear,
		MapSize:     DefaultMapSize,
		DBDir:       XDGDataDir(),
		SaveToDB:    true,
	}
}

// ValidYear reports whether y is a four-digit calendar year.
func ValidYear(y int) bool {
	return y >= MinYear && y <= MaxYear
}

// DefaultYears returns DefaultFromYear..DefaultToYear.
func DefaultYears() []int {
	years := make([]int, 0, DefaultToYear-DefaultFromYear+1)
	for y := DefaultFromYear; y <= DefaultToYear; y++ {
		years = append(years, y)
	}
	return years
}

// XDGDataDir returns the XDG data directory for forestloss.
// On Linux: ~/.local/share/forestloss
// On macOS: ~/Library/Application Support/forestloss
// On Windows: %LOCALAPPDATA%\forestloss
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for forestloss.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ApplyDefaults fills fields that were not set on the command line from the
// defaults section of the configuration file. Years are only replaced when
// yearsSet is false.
func (c *Config) ApplyDefaults(d Defaults, yearsSet bool) {
	if c.Project == "" {
		c.Project = d.Project
	}
	if c.CredentialsFile == "" {
		c.CredentialsFile = d.Credentials
	}
	if c.Dataset == "" {
		c.Dataset = d.Dataset
	}
	if c.CompanyName == "" {
		c.CompanyName = d.Company
	}
	if c.LogoFile == "" {
		c.LogoFile = d.Logo
	}
	if !yearsSet && len(d.Years) > 0 {
		c.Years = append([]int(nil), d.Years...)
	}
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
func (c *Config) Validate() error {
	if c.Cluster == "" {
		return ErrNoCluster
	}
	if len(c.FarmIDs) == 0 {
		return ErrNoFarm
	}
	if len(c.Years) == 0 {
		return ErrNoYears
	}
	for _, y := range c.Years {
		if !ValidYear(y) {
			return ErrInvalidYear
		}
	}
	if c.Project == "" {
		return ErrNoProject
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.Scale <= 0 {
		return ErrInvalidScale
	}
	if c.MaxPixels <= 0 {
		return ErrInvalidMaxPixels
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if !ValidYear(c.MapFromYear) || !ValidYear(c.MapToYear) || c.MapFromYear > c.MapToYear {
		return ErrInvalidMapRange
	}
	return nil
}
