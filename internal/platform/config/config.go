package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration for the compliance engine.
type Server struct {
	Addr string

	// MasterKeySecret feeds per-user key derivation. Content keys are never
	// stored; without this secret a database dump alone cannot recover them.
	MasterKeySecret string

	// DownloadSigningKey signs export download tokens.
	DownloadSigningKey string

	DatabaseURL string
	ExportDir   string

	AuditBufferSize int
	SweepInterval   time.Duration
	AuditRetention  int
}

// Defaults applied when the environment does not override them.
const (
	DefaultAuditBufferSize = 1024
	DefaultSweepInterval   = 24 * time.Hour
	DefaultAuditRetention  = 365
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("PREPGUARD_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	masterKey := os.Getenv("PREPGUARD_MASTER_KEY")
	if masterKey == "" {
		// Use a default for development - should be overridden in production
		masterKey = "dev-master-key-change-in-production"
	}

	signingKey := os.Getenv("PREPGUARD_DOWNLOAD_SIGNING_KEY")
	if signingKey == "" {
		signingKey = masterKey
	}

	exportDir := os.Getenv("PREPGUARD_EXPORT_DIR")
	if exportDir == "" {
		exportDir = os.TempDir()
	}

	bufferSize := DefaultAuditBufferSize
	if raw := os.Getenv("PREPGUARD_AUDIT_BUFFER"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			bufferSize = n
		}
	}

	sweepInterval := DefaultSweepInterval
	if raw := os.Getenv("PREPGUARD_SWEEP_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			sweepInterval = d
		}
	}

	auditRetention := DefaultAuditRetention
	if raw := os.Getenv("PREPGUARD_AUDIT_RETENTION_DAYS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			auditRetention = n
		}
	}

	return Server{
		Addr:               addr,
		MasterKeySecret:    masterKey,
		DownloadSigningKey: signingKey,
		DatabaseURL:        os.Getenv("PREPGUARD_DATABASE_URL"),
		ExportDir:          exportDir,
		AuditBufferSize:    bufferSize,
		SweepInterval:      sweepInterval,
		AuditRetention:     auditRetention,
	}
}
