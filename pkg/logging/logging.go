// Package logging configures one package-level structured logger used
// across the service, replacing bare log.Printf calls.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the shared logger. Init should be called once at process
// startup; before that it defaults to a text-formatted logger at
// info level so tests and early-boot code never see a nil logger.
var Log = logrus.New()

// Init configures the formatter and level based on appEnv. Production
// environments get JSON output (for log aggregation); anything else
// gets the human-readable text formatter.
func Init(appEnv string) {
	Log.SetOutput(os.Stdout)
	if appEnv == "production" {
		Log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	Log.SetLevel(logrus.InfoLevel)
}

// WithFields is a convenience shorthand for Log.WithFields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}
