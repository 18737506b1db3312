package main

import (
	"io"
	"time"

	"github.com/fosrl/newt/logger"
	"github.com/sirupsen/logrus"
)

// logrusWriter renders newt log lines through logrus. Level filtering is
// left to the newt logger, so the logrus side accepts everything.
type logrusWriter struct {
	log *logrus.Logger
}

func newLogrusWriter(w io.Writer) *logrusWriter {
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05",
	})
	return &logrusWriter{log: base}
}

func (w *logrusWriter) Write(level logger.LogLevel, timestamp time.Time, message string) {
	w.log.WithTime(timestamp).Log(toLogrusLevel(level), message)
}

func toLogrusLevel(level logger.LogLevel) logrus.Level {
	switch level {
	case logger.DEBUG:
		return logrus.DebugLevel
	case logger.INFO:
		return logrus.InfoLevel
	case logger.WARN:
		return logrus.WarnLevel
	case logger.ERROR:
		return logrus.ErrorLevel
	default:
		// newt exits the process itself after a FATAL line
		return logrus.ErrorLevel
	}
}
