// dsklog package is just a simple wrapper around logrus
package dsklog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const logLevelEnvVar = "DSKORDER_LOG_LEVEL"

// Global logger instance. It discards everything until InitializeDlogger
// is called so library users never hit a nil logger.
var Dlogger = newDiscardLogger()

func newDiscardLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

// InitializeDlogger initializes or resets the global logger (Dlogger).
// The level comes from DSKORDER_LOG_LEVEL and defaults to info.
func InitializeDlogger(logFile string) {
	Dlogger = logrus.New()

	// #nosec G304
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		logrus.Fatalf("Failed to open log file: %v", err)
	}

	// Set the logger output to the log file
	Dlogger.Out = file
	Dlogger.SetLevel(logrus.InfoLevel)
	if lvl := os.Getenv(logLevelEnvVar); lvl != "" {
		if err := SetLevel(lvl); err != nil {
			Dlogger.Warnf("Ignoring %s: %v", logLevelEnvVar, err)
		}
	}
	Dlogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// SetLevel changes the level of Dlogger. An invalid level leaves the
// current one in place.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	Dlogger.SetLevel(lvl)
	return nil
}
