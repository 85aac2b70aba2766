// Package config loads pipeline settings from the environment.
//
// All ambient state is read exactly once, here, at startup. Everything
// downstream receives explicit values (notably kpi.Thresholds), which keeps
// the transforms pure and independently testable.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"portsignal/internal/kpi"
	"portsignal/internal/storage"
)

// Endpoint is one vendor endpoint plus its optional JSON request payload.
// A nil payload means the endpoint is fetched with GET.
type Endpoint struct {
	URL     string
	Payload map[string]any
}

// Settings is the immutable configuration for one pipeline run.
type Settings struct {
	BaseURL              string
	WeeklyVolumes        Endpoint
	ContainersAtTerminal Endpoint
	OutgatedMetrics      Endpoint
	Berth                Endpoint

	Headers map[string]string
	Cookies map[string]string

	BootstrapURL           string
	BootstrapTokenSelector string
	BootstrapTokenHeader   string

	Timeout     time.Duration
	MaxAttempts int

	DatabaseURL string
	StorageKind string
	DBSchema    string

	FromDate string
	ToDate   string

	XLSXPath string

	DatadogEnabled bool
	DatadogTags    string

	Thresholds kpi.Thresholds
}

// Load reads settings from the environment. When envFile is non-empty it is
// loaded first (missing file is an error: an explicitly named file should
// exist); otherwise a `.env` in the working directory is loaded when present.
//
// Errors:
//   - A single aggregated error naming every missing required variable, so
//     a fresh deployment can be fixed in one pass.
//   - Individual parse errors for malformed JSON/numeric variables.
func Load(envFile string) (Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Settings{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load() // optional .env
	}

	var missing []string
	require := func(name string) string {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			missing = append(missing, name)
		}
		return v
	}

	s := Settings{
		BaseURL: strings.TrimSpace(os.Getenv("SIGNAL_BASE_URL")),

		Headers: map[string]string{},
		Cookies: map[string]string{},

		BootstrapURL:           strings.TrimSpace(os.Getenv("SIGNAL_BOOTSTRAP_URL")),
		BootstrapTokenSelector: strings.TrimSpace(os.Getenv("SIGNAL_BOOTSTRAP_TOKEN_SELECTOR")),
		BootstrapTokenHeader:   strings.TrimSpace(os.Getenv("SIGNAL_BOOTSTRAP_TOKEN_HEADER")),

		DBSchema: envOr("DB_SCHEMA", "public"),
		FromDate: strings.TrimSpace(os.Getenv("FROM_DATE")),
		ToDate:   strings.TrimSpace(os.Getenv("TO_DATE")),
		XLSXPath: strings.TrimSpace(os.Getenv("XLSX_OUT")),

		DatadogEnabled: envBool("DD_METRICS_ENABLED"),
		DatadogTags:    strings.TrimSpace(os.Getenv("DD_TAGS")),
	}

	s.WeeklyVolumes.URL = require("SIGNAL_WEEKLY_VOLUMES_URL")
	s.ContainersAtTerminal.URL = require("SIGNAL_CONTAINERS_AT_TERMINAL_URL")
	s.OutgatedMetrics.URL = require("SIGNAL_OUTGATED_METRICS_URL")
	s.Berth.URL = require("SIGNAL_BERTH_URL")
	s.DatabaseURL = require("DATABASE_URL")

	if len(missing) > 0 {
		sort.Strings(missing)
		return Settings{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	collect(jsonEnv("SIGNAL_WEEKLY_VOLUMES_PAYLOAD", &s.WeeklyVolumes.Payload))
	collect(jsonEnv("SIGNAL_CONTAINERS_AT_TERMINAL_PAYLOAD", &s.ContainersAtTerminal.Payload))
	collect(jsonEnv("SIGNAL_OUTGATED_METRICS_PAYLOAD", &s.OutgatedMetrics.Payload))
	collect(jsonEnv("SIGNAL_BERTH_PAYLOAD", &s.Berth.Payload))
	collect(jsonEnv("SIGNAL_HEADERS_JSON", &s.Headers))
	collect(jsonEnv("SIGNAL_COOKIES_JSON", &s.Cookies))

	if path := strings.TrimSpace(os.Getenv("SIGNAL_COOKIES_PATH")); path != "" && len(s.Cookies) == 0 {
		cookies, err := loadCookieFile(path)
		if err != nil {
			collect(err)
		} else {
			s.Cookies = cookies
		}
	}

	timeoutSec, err := intEnv("SIGNAL_TIMEOUT_SECONDS", 30)
	collect(err)
	s.Timeout = time.Duration(timeoutSec) * time.Second

	s.MaxAttempts, err = intEnv("SIGNAL_MAX_ATTEMPTS", 5)
	collect(err)

	s.StorageKind = strings.TrimSpace(os.Getenv("STORAGE_KIND"))
	if s.StorageKind == "" {
		s.StorageKind = storage.KindFromDSN(s.DatabaseURL)
	}

	s.Thresholds, err = thresholdsFromEnv()
	collect(err)

	if err := errors.Join(errs...); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func thresholdsFromEnv() (kpi.Thresholds, error) {
	t := kpi.DefaultThresholds()

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error

	t.WindowWeeks, err = intEnv("ROLLING_WINDOW_WEEKS", t.WindowWeeks)
	collect(err)
	t.CongestedBuckets = listEnv("CONGESTED_BUCKETS", t.CongestedBuckets)
	t.SlowOutgateBuckets = listEnv("SLOW_OUTGATE_BUCKETS", t.SlowOutgateBuckets)

	t.VolumeHigh, err = floatEnv("VOLUME_PRESSURE_HIGH", t.VolumeHigh)
	collect(err)
	t.VolumeLow, err = floatEnv("VOLUME_PRESSURE_LOW", t.VolumeLow)
	collect(err)
	t.TerminalLoadedHigh, err = floatEnv("TERMINAL_LOADED_HIGH", t.TerminalLoadedHigh)
	collect(err)
	t.TerminalEmptyHigh, err = floatEnv("TERMINAL_EMPTY_HIGH", t.TerminalEmptyHigh)
	collect(err)
	t.OutgateSlowHigh, err = floatEnv("OUTGATE_SLOW_HIGH", t.OutgateSlowHigh)
	collect(err)
	t.BerthHighHours, err = floatEnv("BERTH_HIGH_HOURS", t.BerthHighHours)
	collect(err)
	t.BerthTopN, err = intEnv("BERTH_TOP_N", t.BerthTopN)
	collect(err)

	return t, errors.Join(errs...)
}

func envOr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func envBool(name string) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	return v == "1" || v == "true" || v == "yes"
}

// jsonEnv decodes a JSON-valued variable into dst; unset/empty leaves dst
// untouched.
func jsonEnv[T any](name string, dst *T) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(v), dst); err != nil {
		return fmt.Errorf("%s must be valid JSON: %w", name, err)
	}
	return nil
}

func listEnv(name string, def []string) []string {
	v := os.Getenv(name)
	if strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func intEnv(name string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return n, nil
}

func floatEnv(name string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s must be a number: %w", name, err)
	}
	return f, nil
}

func loadCookieFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cookie file: %w", err)
	}
	var cookies map[string]string
	if err := json.Unmarshal(raw, &cookies); err != nil {
		return nil, fmt.Errorf("cookie file %s must be a JSON object of name->value: %w", path, err)
	}
	return cookies, nil
}
