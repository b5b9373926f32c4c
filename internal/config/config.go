package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"taxelev/internal"
)

type Config struct {
	DBPath          string
	RawDocDir       string
	OutputDir       string
	CorrectionsFile string
	CSVSeparator    string

	LogLevel  string
	LogFormat string

	DefaultUnit            string
	DefaultCase            string
	DefaultDigits          string
	DefaultParseElevations bool

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	ListenerProvider     string
	ListenerLabel        string
	ListenerIntervalSec  int
	ListenerFetchMax     int
	ListenerProcessBatch int
	ListenerAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:          getEnv("DB_PATH", filepath.Join(cwd, "data", "taxelev.db")),
		RawDocDir:       getEnv("RAW_DOC_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:       getEnv("OUTPUT_DIR", filepath.Join(cwd, "extracted")),
		CorrectionsFile: getEnv("CORRECTIONS_FILE", filepath.Join(cwd, "corrections.yaml")),
		CSVSeparator:    getEnv("CSV_SEPARATOR", ";"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DefaultUnit:            getEnv("DEFAULT_UNIT", "meter"),
		DefaultCase:            getEnv("DEFAULT_CASE", "lowercase"),
		DefaultDigits:          getEnv("DEFAULT_DIGITS", ""),
		DefaultParseElevations: getEnvBool("DEFAULT_PARSE_ELEVATIONS", false),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		ListenerProvider:     getEnv("LISTENER_PROVIDER", "imap"),
		ListenerLabel:        getEnv("LISTENER_LABEL", "INBOX"),
		ListenerIntervalSec:  getEnvInt("LISTENER_INTERVAL_SEC", 60),
		ListenerFetchMax:     getEnvInt("LISTENER_FETCH_MAX", 20),
		ListenerProcessBatch: getEnvInt("LISTENER_PROCESS_BATCH", 20),
		ListenerAutoExport:   getEnvBool("LISTENER_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// DefaultOptions builds the extraction options used for unattended runs.
func (c Config) DefaultOptions() (internal.Options, error) {
	unit, err := internal.ParseUnit(c.DefaultUnit)
	if err != nil {
		return internal.Options{}, fmt.Errorf("DEFAULT_UNIT: %w", err)
	}
	nameCase, err := internal.ParseNameCase(c.DefaultCase)
	if err != nil {
		return internal.Options{}, fmt.Errorf("DEFAULT_CASE: %w", err)
	}

	var values []int
	for _, part := range strings.Split(c.DefaultDigits, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return internal.Options{}, fmt.Errorf("DEFAULT_DIGITS: %w: %q", internal.ErrInvalidDigitRange, c.DefaultDigits)
		}
		values = append(values, n)
	}
	digits, err := internal.NewDigitRange(values)
	if err != nil {
		return internal.Options{}, fmt.Errorf("DEFAULT_DIGITS: %w", err)
	}

	return internal.Options{
		Unit:           unit,
		Case:           nameCase,
		Digits:         digits,
		ParseElevation: c.DefaultParseElevations,
	}, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
