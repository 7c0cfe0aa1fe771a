package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures every knob the service reads from the environment so main
// stays lean.
type Config struct {
	Addr     string
	FilesDir string

	// Remote registry API consumed by the sync and remap engines.
	APIBaseURL string

	// Extract source and the downstream extract regeneration service.
	ExtractDownloadURL string
	ExtractServiceURL  string

	// Profession codes whose holders are never deleted by the sync engine.
	ExcludedProfessionCodes []string

	ScheduleEnabled  bool
	ScheduleInterval time.Duration
	AutoContinue     bool

	// Upper bound on concurrent remote calls during fan-out.
	WorkerLimit int

	// IANA charset name of the raw extract (the source is not UTF-8).
	Charset string

	UseTLS   bool
	CertPath string
	KeyPath  string
	CAPath   string

	Mail Mail
}

// Mail holds the operator notification settings. An empty Host disables mail.
type Mail struct {
	Host string
	Port string
	From string
	To   []string
}

// FromEnv builds a Config from environment variables, applying development
// defaults where a variable is unset.
func FromEnv() Config {
	cfg := Config{
		Addr:               envOr("REGSYNC_ADDR", ":8080"),
		FilesDir:           envOr("REGSYNC_FILES_DIR", "./files"),
		APIBaseURL:         envOr("REGSYNC_API_BASE_URL", "http://localhost:9000/api"),
		ExtractDownloadURL: os.Getenv("REGSYNC_EXTRACT_DOWNLOAD_URL"),
		ExtractServiceURL:  os.Getenv("REGSYNC_EXTRACT_SERVICE_URL"),
		ScheduleEnabled:    envBool("REGSYNC_SCHEDULE_ENABLED", true),
		ScheduleInterval:   envDuration("REGSYNC_SCHEDULE_INTERVAL", 24*time.Hour),
		AutoContinue:       envBool("REGSYNC_AUTO_CONTINUE", false),
		WorkerLimit:        envInt("REGSYNC_WORKER_LIMIT", 20),
		Charset:            envOr("REGSYNC_CHARSET", "windows-1252"),
		UseTLS:             envBool("REGSYNC_USE_TLS", false),
		CertPath:           os.Getenv("REGSYNC_CERT_PATH"),
		KeyPath:            os.Getenv("REGSYNC_KEY_PATH"),
		CAPath:             os.Getenv("REGSYNC_CA_PATH"),
		Mail: Mail{
			Host: os.Getenv("REGSYNC_MAIL_HOST"),
			Port: envOr("REGSYNC_MAIL_PORT", "25"),
			From: os.Getenv("REGSYNC_MAIL_FROM"),
		},
	}

	if raw := os.Getenv("REGSYNC_EXCLUDED_PROFESSION_CODES"); raw != "" {
		cfg.ExcludedProfessionCodes = splitList(raw)
	}
	if raw := os.Getenv("REGSYNC_MAIL_TO"); raw != "" {
		cfg.Mail.To = splitList(raw)
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
