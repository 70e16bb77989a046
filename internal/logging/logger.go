// Package logging provides structured logging for ActaSync.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// global logger instance
	global *logrus.Logger
	once   sync.Once
)

// Init initializes the global logger. level is one of debug, info,
// warn, error; anything unparseable falls back to info.
func Init(out io.Writer, level string) {
	once.Do(func() {
		global = newLogger(out, level)
	})
}

// Get returns the global logger instance.
func Get() *logrus.Logger {
	if global == nil {
		Init(os.Stdout, "info")
	}
	return global
}

func newLogger(out io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
	return l
}

// Convenience functions using the global logger. Context maps become
// structured fields on the entry.

func Debug(message string, context ...map[string]interface{}) {
	Get().WithFields(mergeContext(context...)).Debug(message)
}

func Info(message string, context ...map[string]interface{}) {
	Get().WithFields(mergeContext(context...)).Info(message)
}

func Warn(message string, context ...map[string]interface{}) {
	Get().WithFields(mergeContext(context...)).Warn(message)
}

func Error(message string, err error, context ...map[string]interface{}) {
	entry := Get().WithFields(mergeContext(context...))
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}

// mergeContext merges multiple context maps into logrus fields.
func mergeContext(context ...map[string]interface{}) logrus.Fields {
	if len(context) == 0 {
		return logrus.Fields{}
	}
	merged := make(logrus.Fields)
	for _, c := range context {
		for k, v := range c {
			merged[k] = v
		}
	}
	return merged
}
