package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/ytmentions/internal/model"
)

type LevelList []logrus.Level

func (a LevelList) MarshalText() ([]byte, error) {
	if len(a) == 0 {
		return []byte("-"), nil
	}

	var s string

	for i, e := range a {
		if i != 0 {
			s += ","
		}

		s += e.String()
	}

	return []byte(s), nil
}

func (a *LevelList) UnmarshalText(d []byte) error {
	if string(d) == "" || string(d) == "-" {
		*a = LevelList{}
		return nil
	}

	var aa LevelList

	for _, e := range strings.Split(string(d), ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}

		l, err := logrus.ParseLevel(e)
		if err != nil {
			return fmt.Errorf("config.LevelList.UnmarshalText: could not parse value as logrus level: %w", err)
		}

		aa = append(aa, l)
	}

	*a = aa

	return nil
}

type LogQueries struct {
	Enabled    bool
	SlowerThan time.Duration
}

func (l LogQueries) String() string {
	if l.Enabled {
		if l.SlowerThan != 0 {
			return ">" + l.SlowerThan.String()
		}

		return "all"
	}

	return "none"
}

func (l LogQueries) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *LogQueries) UnmarshalText(d []byte) error {
	s := string(d)

	switch s {
	case "all":
		l.Enabled = true
		l.SlowerThan = 0
		return nil
	case "", "none":
		l.Enabled = false
		l.SlowerThan = 0
		return nil
	default:
		if s[0] == '>' && len(s) > 1 {
			d, err := time.ParseDuration(s[1:])
			if err != nil {
				return fmt.Errorf("config.LogQueries.UnmarshalText: could not parse value as duration: %w", err)
			}
			l.Enabled = true
			l.SlowerThan = d
			return nil
		}

		return fmt.Errorf("config.LogQueries.UnmarshalText: unrecognised input %q; valid options are none, all, or >x where x is a duration", s)
	}
}

func (l *LogQueries) IsZero() bool {
	return l.Enabled == false && l.SlowerThan == 0
}

// StringList is a comma separated list, as given in flags and the
// environment.
type StringList []string

func (a StringList) MarshalText() ([]byte, error) {
	return []byte(strings.Join(a, ",")), nil
}

func (a *StringList) UnmarshalText(d []byte) error {
	var aa StringList

	for _, e := range strings.Split(string(d), ",") {
		if e = strings.TrimSpace(e); e != "" {
			aa = append(aa, e)
		}
	}

	*a = aa

	return nil
}

type Config struct {
	Config               string        `name:"config" toml:"config" yaml:"config" help:"Config file location."`
	LogLevel             logrus.Level  `name:"log_level" toml:"log_level" yaml:"log_level" help:"Global log level."`
	LogDebugLevels       LevelList     `name:"log_debug_levels" toml:"log_debug_levels" yaml:"log_debug_levels" help:"Which log levels to include stack data on."`
	LogQueries           LogQueries    `name:"log_queries" toml:"log_queries" yaml:"log_queries" help:"Log SQL queries."`
	LogSORM              bool          `name:"log_sorm" toml:"log_sorm" yaml:"log_sorm" help:"Log SORM queries."`
	ApplicationAddr      string        `name:"application_addr" toml:"application_addr" yaml:"application_addr" help:"Address to listen on for application server."`
	ApplicationDatabase  string        `name:"application_database" toml:"application_database" yaml:"application_database" help:"Database location for the action journal and job queue."`
	ApplicationCachePath string        `name:"application_cache_path" toml:"application_cache_path" yaml:"application_cache_path" help:"Location for HTTP client cache and saved sessions."`
	ApplicationMinify    bool          `name:"application_minify" toml:"application_minify" yaml:"application_minify" help:"Minify HTML/CSS/JS output."`
	BackgroundWorkers    int           `name:"background_workers" toml:"background_workers" yaml:"background_workers" help:"How many background workers to run."`
	ServiceURL           string        `name:"service_url" toml:"service_url" yaml:"service_url" help:"Base URL of the processing service."`
	TranscriptServiceURL string        `name:"transcript_service_url" toml:"transcript_service_url" yaml:"transcript_service_url" help:"Base URL of the transcript availability service."`
	ServiceTimeout       time.Duration `name:"service_timeout" toml:"service_timeout" yaml:"service_timeout" help:"Timeout for requests to either service."`
	OperatorName         string        `name:"operator_name" toml:"operator_name" yaml:"operator_name" help:"Name recorded against triage commands when the operator hasn't set one."`
	PageSize             int           `name:"page_size" toml:"page_size" yaml:"page_size" help:"Default number of videos per page."`
	ReadyLimit           int           `name:"ready_limit" toml:"ready_limit" yaml:"ready_limit" help:"Most videos submitted by one process-ready command."`
	RefreshDelay         time.Duration `name:"refresh_delay" toml:"refresh_delay" yaml:"refresh_delay" help:"Delay before refreshing after a batch is submitted."`
	FuzzyMatching        bool          `name:"fuzzy_matching" toml:"fuzzy_matching" yaml:"fuzzy_matching" help:"Default for fuzzy keyword matching."`
	FuzzyThreshold       float64       `name:"fuzzy_threshold" toml:"fuzzy_threshold" yaml:"fuzzy_threshold" help:"Default fuzzy match threshold, between 0 and 1."`
	Sentiment            bool          `name:"sentiment" toml:"sentiment" yaml:"sentiment" help:"Default for sentiment analysis."`
	Languages            StringList    `name:"languages" toml:"languages" yaml:"languages" help:"Default transcript languages, comma separated, in order of preference."`
	ThumbnailCacheMaxAge time.Duration `name:"thumbnail_cache_max_age" toml:"thumbnail_cache_max_age" yaml:"thumbnail_cache_max_age" help:"How long to keep proxied thumbnails."`
	SessionCookie        string        `name:"session_cookie" toml:"session_cookie" yaml:"session_cookie" help:"Name of the session cookie."`
}

// Defaults is the configuration before any file, flag or environment
// variable is applied.
func Defaults() Config {
	return Config{
		LogLevel:             logrus.InfoLevel,
		LogDebugLevels:       LevelList{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel},
		ApplicationAddr:      ":5000",
		ApplicationDatabase:  "db.sqlite",
		ApplicationCachePath: "cache.db",
		BackgroundWorkers:    2,
		ServiceURL:           "http://localhost:8000",
		TranscriptServiceURL: "http://localhost:8001",
		ServiceTimeout:       time.Second * 30,
		OperatorName:         "dashboard",
		PageSize:             20,
		ReadyLimit:           100,
		RefreshDelay:         time.Second * 5,
		FuzzyMatching:        true,
		FuzzyThreshold:       0.8,
		Sentiment:            true,
		Languages:            StringList{"mr", "hi", "en"},
		ThumbnailCacheMaxAge: time.Hour * 24 * 7,
		SessionCookie:        "ytmentions_session",
	}
}

func (c Config) Validate() error {
	if c.ServiceURL == "" {
		return fmt.Errorf("config.Config.Validate: service_url is required")
	}
	if c.FuzzyThreshold < 0 || c.FuzzyThreshold > 1 {
		return fmt.Errorf("config.Config.Validate: fuzzy_threshold must be between 0 and 1; was %v", c.FuzzyThreshold)
	}
	if c.BackgroundWorkers < 0 {
		return fmt.Errorf("config.Config.Validate: background_workers can't be negative")
	}

	return nil
}

// ProcessingOptions are the defaults a new session submits batches with.
func (c Config) ProcessingOptions() model.ProcessingOptions {
	o := model.ProcessingOptions{
		UseFuzzyMatching: c.FuzzyMatching,
		FuzzyThreshold:   c.FuzzyThreshold,
		EnableSentiment:  c.Sentiment,
		Languages:        append([]string(nil), c.Languages...),
	}

	if len(o.Languages) == 0 {
		o.Languages = append([]string(nil), model.DefaultLanguages...)
	}

	return o
}
