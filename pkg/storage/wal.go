package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vjranagit/idealfit/pkg/types"
)

const journalFlushInterval = time.Second

// Journal is an append-only log with one JSON line per pipeline run
type Journal struct {
	path       string
	file       *os.File
	writer     *bufio.Writer
	mu         sync.Mutex
	flushTimer *time.Timer
	closed     bool
}

// JournalEntry records the outcome of one run
type JournalEntry struct {
	Timestamp  time.Time    `json:"timestamp"`
	Training   string       `json:"training"`
	Ideal      string       `json:"ideal"`
	Test       string       `json:"test"`
	Pairs      []types.Pair `json:"pairs"`
	Points     int          `json:"points"`
	Matched    int          `json:"matched"`
	Unmatched  int          `json:"unmatched"`
	Failed     int          `json:"failed"`
	DurationMS int64        `json:"duration_ms"`
}

// NewJournal opens a fresh journal file below dataPath
func NewJournal(dataPath string) (*Journal, error) {
	journalPath := filepath.Join(dataPath, "journal")
	if err := os.MkdirAll(journalPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	filename := filepath.Join(journalPath, fmt.Sprintf("run-%d.log", time.Now().UnixNano()))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	j := &Journal{
		path:   journalPath,
		file:   file,
		writer: bufio.NewWriter(file),
	}
	j.flushTimer = time.AfterFunc(journalFlushInterval, j.autoFlush)

	return j, nil
}

// Append appends an entry to the journal
func (j *Journal) Append(entry *JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return fmt.Errorf("journal is closed")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	if _, err := j.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write to journal: %w", err)
	}
	if err := j.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

// Flush flushes the journal to disk
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flushLocked()
}

// flushLocked flushes the buffer (must hold lock)
func (j *Journal) flushLocked() error {
	if j.closed {
		return nil
	}

	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush journal: %w", err)
	}

	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal: %w", err)
	}

	return nil
}

// autoFlush periodically flushes the journal
func (j *Journal) autoFlush() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return
	}
	j.flushLocked()
	j.flushTimer.Reset(journalFlushInterval)
}

// Close flushes and closes the journal
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	if j.flushTimer != nil {
		j.flushTimer.Stop()
	}

	if err := j.flushLocked(); err != nil {
		return err
	}
	j.closed = true

	return j.file.Close()
}

// ReplayJournal calls handler for every journal entry, oldest file first.
// Files are left in place.
func ReplayJournal(dataPath string, handler func(*JournalEntry) error) error {
	journalPath := filepath.Join(dataPath, "journal")

	entries, err := os.ReadDir(journalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No journal yet
		}
		return fmt.Errorf("failed to read journal directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		filename := filepath.Join(journalPath, name)
		if err := replayJournalFile(filename, handler); err != nil {
			return fmt.Errorf("failed to replay %s: %w", filename, err)
		}
	}

	return nil
}

// replayJournalFile replays a single journal file
func replayJournalFile(filename string, handler func(*JournalEntry) error) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fmt.Errorf("failed to unmarshal journal entry: %w", err)
		}

		if err := handler(&entry); err != nil {
			return fmt.Errorf("failed to replay entry: %w", err)
		}
	}

	return scanner.Err()
}
