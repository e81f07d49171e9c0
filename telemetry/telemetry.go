// Package telemetry provides the structured logging facility shared by every
// eventledger component. It wraps logrus with the same stdout/stderr stream
// separation the rest of the eve.evalgo.org ecosystem uses, so error-level
// entries can be captured independently by container log routers.
package telemetry

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// streamSplitter routes formatted log lines to stderr when they carry
// level=error and to stdout otherwise.
type streamSplitter struct{}

func (streamSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the package-wide logrus instance. Components call
// Logger.WithFields to attach object/stream identifiers before logging, e.g.:
//
//	telemetry.Logger.WithFields(logrus.Fields{
//	    "object_name": doc.ObjectName,
//	    "object_id":   doc.ObjectID,
//	}).Info("manifest committed")
var Logger = logrus.New()

func init() {
	Logger.SetOutput(streamSplitter{})
}

// Fields is a re-export of logrus.Fields so callers don't need a direct
// logrus import just to build a field set.
type Fields = logrus.Fields

// SetJSON switches the logger to JSON formatting, used in production
// deployments where logs are shipped to an aggregator.
func SetJSON() {
	Logger.SetFormatter(&logrus.JSONFormatter{})
}

// SetLevel parses and applies a textual log level ("debug", "info", "warn",
// "error"), defaulting to info on an unrecognized value.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)
}
