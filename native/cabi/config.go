package cabi

import (
	"os"

	"go.uber.org/zap"
)

// EnvLibrary names the environment variable consulted when Config.Path is empty.
const EnvLibrary = "OBJBRIDGE_NATIVE_LIB"

// Config holds configuration for opening a native C library.
type Config struct {
	// Path to the shared object. Defaults to $OBJBRIDGE_NATIVE_LIB.
	Path   string
	Logger *zap.Logger
}

func (c Config) path() string {
	if c.Path != "" {
		return c.Path
	}
	return os.Getenv(EnvLibrary)
}
