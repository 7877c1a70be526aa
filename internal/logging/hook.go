package logging

import (
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

type sinkHook struct {
	mu        sync.Mutex
	out       io.Writer
	formatter logrus.Formatter
	levels    []logrus.Level
	suppress  []string
}

func newSinkHook(out io.Writer, formatter logrus.Formatter, levels []logrus.Level, suppress []string) *sinkHook {
	return &sinkHook{
		out:       out,
		formatter: formatter,
		levels:    levels,
		suppress:  suppress,
	}
}

func (h *sinkHook) Levels() []logrus.Level {
	return h.levels
}

func (h *sinkHook) Fire(entry *logrus.Entry) error {
	if Suppressed(entry.Message, h.suppress) {
		return nil
	}
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.out.Write(line)
	return err
}

// Suppressed reports whether msg contains one of the noise substrings.
func Suppressed(msg string, noise []string) bool {
	for _, s := range noise {
		if s != "" && strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
