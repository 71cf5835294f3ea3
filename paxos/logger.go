package paxos

import (
	"log"
	"os"
)

// EventLogger receives the human readable election trace.
type EventLogger interface {
	Printf(format string, args ...any)
}

type stdEventLogger struct {
	logger *log.Logger
}

// NewStdEventLogger writes event lines to stdout, unprefixed, the way
// operators read the election trace.
func NewStdEventLogger() EventLogger {
	return &stdEventLogger{
		logger: log.New(os.Stdout, "", 0),
	}
}

func (l *stdEventLogger) Printf(format string, args ...any) {
	l.logger.Printf(format, args...)
}
