package fake

import (
	"fmt"
	"strings"
	"sync"

	"github.com/QuangTung97/council-election/paxos"
)

// LoggerFake records event lines for assertions.
type LoggerFake struct {
	mut   sync.Mutex
	lines []string
}

var _ paxos.EventLogger = &LoggerFake{}

func (l *LoggerFake) Printf(format string, args ...any) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *LoggerFake) Lines() []string {
	l.mut.Lock()
	defer l.mut.Unlock()
	result := make([]string, len(l.lines))
	copy(result, l.lines)
	return result
}

// Contains reports whether any recorded line contains substr.
func (l *LoggerFake) Contains(substr string) bool {
	l.mut.Lock()
	defer l.mut.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
