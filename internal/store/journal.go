package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Journal is the append-only log of the current run's operations.
//
// It is written one record at a time as target operations succeed, replayed
// at the start of the next run if that run finds it non-empty (crash
// recovery), and reset only after a successful snapshot commit.
//
// A Journal is not safe for concurrent use. The engine runs single-threaded
// and no two runs may share a journal file.
type Journal struct {
	path   string
	logger *slog.Logger

	// Append handle, opened on first use and kept for the run.
	f *os.File
}

// NewJournal creates a journal backed by the file at path. The file is not
// touched until the first Append or Replay.
func NewJournal(path string, logger *slog.Logger) *Journal {
	return &Journal{path: path, logger: logger}
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Append durably persists one record. The record is written as a single
// JSON line and synced to disk before Append returns, so a crash after a
// successful Append cannot lose the record.
//
// Failures here are fatal for the run: if the journal cannot be written,
// no further target operations may be performed.
func (j *Journal) Append(rec Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("refusing to append invalid record: %w", err)
	}

	if j.f == nil {
		if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
			return fmt.Errorf("failed to create journal directory: %w", err)
		}
		f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		j.f = f
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')

	if _, err := j.f.Write(line); err != nil {
		return fmt.Errorf("failed to append to journal: %w", err)
	}
	if err := j.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal: %w", err)
	}
	return nil
}

// Replay reads every record in order and folds it into a fresh State.
//
// Malformed lines, including a torn final line left by a crash mid-write,
// are skipped with a warning and never abort the replay. I/O errors do.
// A missing journal file yields an empty State.
func (j *Journal) Replay() (*State, error) {
	state := NewState()

	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return state, nil
		}
		return nil, fmt.Errorf("failed to open journal for replay: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			j.logger.Warn("skipping malformed journal line",
				"path", j.path,
				"line", lineNo,
				"error", err,
			)
			continue
		}
		if err := rec.Validate(); err != nil {
			j.logger.Warn("skipping invalid journal record",
				"path", j.path,
				"line", lineNo,
				"error", err,
			)
			continue
		}

		state.Apply(rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	return state, nil
}

// Len returns the number of well-formed records currently in the journal
// file. Used by status reporting; a replay is performed under the hood.
func (j *Journal) Len() (int, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Validate() != nil {
			continue
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read journal: %w", err)
	}
	return n, nil
}

// Reset removes the journal file. Called after a successful snapshot commit,
// or on explicit abort. Resetting a missing journal is a no-op.
func (j *Journal) Reset() error {
	if j.f != nil {
		if err := j.f.Close(); err != nil {
			return fmt.Errorf("failed to close journal: %w", err)
		}
		j.f = nil
	}
	if err := os.Remove(j.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove journal: %w", err)
	}
	return nil
}

// Close releases the append handle without removing the file. The journal
// must survive a failed run for the next run to replay.
func (j *Journal) Close() error {
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}
