package logger

import (
	"io"
	"os"
)

// Config holds the configuration for the logger
type Config struct {
	Level       LogLevel
	Format      OutputFormat
	Outputs     []io.Writer
	Environment string // "development" or "production"
	Subsystem   string
	FileConfig  *FileConfig
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:       InfoLevel,
		Format:      DefaultFormat,
		Outputs:     []io.Writer{os.Stderr},
		Environment: "development",
		Subsystem:   "",
	}
}

// TestConfig returns a configuration suitable for tests: everything is
// discarded so assertions never race with console output.
func TestConfig() *Config {
	return &Config{
		Level:       ErrorLevel,
		Format:      JSONFormat,
		Outputs:     []io.Writer{io.Discard},
		Environment: "production",
	}
}

// FileConfig holds file rotation configuration
type FileConfig struct {
	Filename   string // File path
	MaxSize    int    // Maximum size in megabytes
	MaxAge     int    // Maximum age in days
	MaxBackups int    // Maximum number of backup files
	Compress   bool   // Whether to compress rotated files
}

// DefaultFileConfig returns a default file configuration
func DefaultFileConfig(filename string) *FileConfig {
	return &FileConfig{
		Filename:   filename,
		MaxSize:    100,
		MaxAge:     30,
		MaxBackups: 10,
		Compress:   true,
	}
}
