// Package logger persists network activity entries as JSON lines.
package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/torkjacobs/tork-guardian/internal/netaccess"
	"github.com/torkjacobs/tork-guardian/internal/redact"
)

// defaultMaxLogBytes is the size at which New rotates the file to path.1.
const defaultMaxLogBytes = 10 << 20

// ActivityLogger appends activity entries to a file. It implements
// netaccess.ActivitySink.
type ActivityLogger struct {
	file *os.File
	mu   sync.Mutex
}

func New(path string) (*ActivityLogger, error) {
	if err := rotate(path, defaultMaxLogBytes); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	return &ActivityLogger{file: file}, nil
}

func rotate(path string, limit int64) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.Size() < limit {
		return nil
	}
	if err := os.Rename(path, path+".1"); err != nil {
		return fmt.Errorf("rotating %s: %w", path, err)
	}
	return nil
}

func (l *ActivityLogger) Record(entry netaccess.ActivityEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Reason = redact.Redact(entry.Reason)

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = l.file.Write(data)
	return err
}

func (l *ActivityLogger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// ReadEntries loads every well-formed entry from path. A missing file
// yields no entries.
func ReadEntries(path string) ([]netaccess.ActivityEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var entries []netaccess.ActivityEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry netaccess.ActivityEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // skip malformed lines
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// Truncate empties the log at path, keeping the file.
func Truncate(path string) error {
	err := os.Truncate(path, 0)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
