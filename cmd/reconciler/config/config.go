package config

import (
	"fmt"
	"strings"
	"time"

	"settlement-reconciliation-service/internal/matcher"
	"settlement-reconciliation-service/internal/models"
	"settlement-reconciliation-service/internal/parsers"
	"settlement-reconciliation-service/internal/pos"
	"settlement-reconciliation-service/internal/reconciler"
	"settlement-reconciliation-service/internal/reporter"
	"settlement-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Settings is the merged view of flags, RECONCILER_* environment variables
// and the optional config file. Keys match the flag names.
type Settings struct {
	SettlementFile string `mapstructure:"settlement-file"`
	Year           int    `mapstructure:"year"`
	Month          int    `mapstructure:"month"`

	APIBaseURL string        `mapstructure:"api-base-url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxPages   int           `mapstructure:"max-pages"`

	Threshold  string `mapstructure:"threshold"`
	TopN       int    `mapstructure:"top-n"`
	Resolution string `mapstructure:"resolution"`

	BranchesFile string `mapstructure:"branches-file"`
	HeaderRows   int    `mapstructure:"header-rows"`
	DayOffset    int    `mapstructure:"day-offset"`
	Sentinel     string `mapstructure:"sentinel"`
	Delimiter    string `mapstructure:"delimiter"`

	OutputFormat string `mapstructure:"output-format"`
	OutputFile   string `mapstructure:"output-file"`
	NoColor      bool   `mapstructure:"no-color"`
	Progress     bool   `mapstructure:"progress"`
	Verbose      bool   `mapstructure:"verbose"`
}

// Defaults returns the settings used when nothing overrides them
func Defaults() *Settings {
	return &Settings{
		APIBaseURL:   pos.DefaultBaseURL,
		Timeout:      30 * time.Second,
		MaxPages:     pos.DefaultMaxPages,
		Threshold:    reconciler.DefaultThreshold.String(),
		TopN:         reconciler.DefaultTopN,
		Resolution:   matcher.StrategyExact.String(),
		HeaderRows:   2,
		DayOffset:    2,
		Sentinel:     "revenue",
		Delimiter:    ",",
		OutputFormat: string(reporter.FormatConsole),
	}
}

// Load unmarshals and validates the settings held by v
func Load(v *viper.Viper) (*Settings, error) {
	settings := Defaults()
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", v.ConfigFileUsed(), err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks every setting and reports the first invalid one
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.SettlementFile) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "settlement-file", s.SettlementFile, nil).
			WithSuggestion("Pass --settlement-file with the exported monthly sheet")
	}

	if s.Year == 0 || s.Month == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "year/month", s.Period(), nil).
			WithSuggestion("Pass --year and --month, e.g. --year 2025 --month 12")
	}
	if err := s.Period().Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "year/month", s.Period(), err)
	}

	if _, err := s.threshold(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "threshold", s.Threshold, err).
			WithSuggestion("Use a non-negative rupiah amount, e.g. --threshold 1000")
	}
	if s.TopN < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "top-n", s.TopN,
			fmt.Errorf("cannot be negative"))
	}

	if _, err := matcher.ParseResolutionStrategy(s.Resolution); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "resolution", s.Resolution, err).
			WithSuggestion("Use --resolution exact or --resolution normalized")
	}

	if _, err := reporter.ParseOutputFormat(s.OutputFormat); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", s.OutputFormat, err).
			WithSuggestion("Use --output-format console, json or csv")
	}

	if _, err := s.ParserConfig(); err != nil {
		return err
	}

	if err := s.ClientConfig().Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "api-base-url/timeout", s.APIBaseURL, err)
	}
	if s.MaxPages < 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max-pages", s.MaxPages,
			fmt.Errorf("must be at least 1"))
	}

	return nil
}

// Period returns the reconciled month
func (s *Settings) Period() models.YearMonth {
	return models.YearMonth{Year: s.Year, Month: s.Month}
}

func (s *Settings) threshold() (decimal.Decimal, error) {
	threshold, err := decimal.NewFromString(strings.TrimSpace(s.Threshold))
	if err != nil {
		return decimal.Zero, err
	}
	if threshold.IsNegative() {
		return decimal.Zero, fmt.Errorf("threshold cannot be negative: %s", threshold)
	}
	return threshold, nil
}

// Strategy returns the branch label resolution strategy
func (s *Settings) Strategy() matcher.ResolutionStrategy {
	strategy, _ := matcher.ParseResolutionStrategy(s.Resolution)
	return strategy
}

// LoadBranchTable reads --branches-file, or the embedded table when unset
func (s *Settings) LoadBranchTable() (*matcher.BranchTable, error) {
	if s.BranchesFile == "" {
		return matcher.LoadEmbeddedTable()
	}

	table, err := matcher.LoadTableFromFile(s.BranchesFile)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryConfiguration, errors.CodeInvalidConfig,
			"cannot load branch table").WithContext("branches_file", s.BranchesFile)
	}
	return table, nil
}

// ParserConfig builds the settlement sheet layout
func (s *Settings) ParserConfig() (*parsers.SettlementParserConfig, error) {
	delimiter, err := parsers.ParseDelimiter(s.Delimiter)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "delimiter", s.Delimiter, err)
	}

	config := parsers.DefaultSettlementParserConfig()
	config.SkipRows = s.HeaderRows
	config.DayColumnOffset = s.DayOffset
	config.SentinelLabel = s.Sentinel
	config.Delimiter = delimiter

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "settlement layout", s.SettlementFile, err).
			WithSuggestion("Check --header-rows, --day-offset and --sentinel against the sheet")
	}
	return config, nil
}

// ClientConfig builds the POS client configuration
func (s *Settings) ClientConfig() *pos.ClientConfig {
	config := pos.DefaultClientConfig()
	config.BaseURL = strings.TrimRight(s.APIBaseURL, "/")
	config.Timeout = s.Timeout
	return config
}

// AggregatorConfig builds the POS pagination configuration
func (s *Settings) AggregatorConfig() *pos.AggregatorConfig {
	config := pos.DefaultAggregatorConfig()
	config.MaxPages = s.MaxPages
	return config
}

// ReconcilerConfig builds the engine configuration, classifying branches
// with the category rules from table.
func (s *Settings) ReconcilerConfig(table *matcher.BranchTable) (*reconciler.Config, error) {
	threshold, err := s.threshold()
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "threshold", s.Threshold, err)
	}

	config := reconciler.DefaultConfig()
	config.Threshold = threshold
	config.TopN = s.TopN
	if table != nil {
		config.Classifier = matcher.NewCategoryClassifier(table.Categories)
	}
	return config, nil
}

// ReportConfig builds the report configuration
func (s *Settings) ReportConfig() *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()
	if format, err := reporter.ParseOutputFormat(s.OutputFormat); err == nil {
		config.Format = format
	}
	// colour codes only make sense on a terminal
	config.UseColors = !s.NoColor && config.Format == reporter.FormatConsole && s.OutputFile == ""
	return config
}
