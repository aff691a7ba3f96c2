// Package history records the outcomes of past maintenance cycles.
// History is informational: it must never block or fail a cycle, so a
// missing or corrupt file simply starts an empty log.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxEntries caps how many cycles the log keeps; older entries are dropped
const MaxEntries = 50

// Status of a finished cycle
type Status string

const (
	// StatusSuccess means every step completed
	StatusSuccess Status = "success"
	// StatusFailed means a package operation or hook failed
	StatusFailed Status = "failed"
	// StatusAborted means a pre-flight check stopped the cycle before
	// any package state was touched
	StatusAborted Status = "aborted"
)

// Trigger records why the cycle ran
type Trigger string

const (
	// TriggerDue means the gate decided enough time had elapsed
	TriggerDue Trigger = "due"
	// TriggerForced means the user bypassed the gate
	TriggerForced Trigger = "forced"
)

// Entry is one recorded cycle
type Entry struct {
	// ID uniquely identifies the cycle
	ID string `json:"id"`
	// StartedAt is when the cycle began
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the cycle ended, successfully or not
	FinishedAt time.Time `json:"finished_at"`
	// Status is the cycle outcome
	Status Status `json:"status"`
	// Trigger is why the cycle ran
	Trigger Trigger `json:"trigger"`
	// Steps lists the completed steps in execution order
	Steps []string `json:"steps,omitempty"`
	// FailedStep names the step that stopped the cycle, if any
	FailedStep string `json:"failed_step,omitempty"`
	// ExitCode is the failing command's exit status, if any
	ExitCode int `json:"exit_code,omitempty"`
	// Error is the failure message, if any
	Error string `json:"error,omitempty"`
}

// historyFile represents the JSON structure stored on disk
type historyFile struct {
	Entries []Entry `json:"entries"`
}

// Log persists recent cycle outcomes to a JSON file
type Log struct {
	path string
	// entries holds the log oldest-first
	entries []Entry
	// mu protects concurrent access to entries
	mu sync.Mutex
}

// Open loads the history log at path. The file not existing, or existing
// but being unreadable, both yield an empty log.
func Open(path string) *Log {
	l := &Log{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		return l
	}

	var hf historyFile
	if err := json.Unmarshal(data, &hf); err != nil {
		// Corrupt history is overwritten on the next Append
		return l
	}

	l.entries = hf.Entries
	return l
}

// Append records an entry and persists the log, trimming to MaxEntries.
// An empty ID is filled with a fresh UUID. The stored entry is returned.
func (l *Log) Append(e Entry) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	l.entries = append(l.entries, e)
	if len(l.entries) > MaxEntries {
		l.entries = l.entries[len(l.entries)-MaxEntries:]
	}

	return e, l.save()
}

// save persists the log to disk. Caller must hold the lock.
func (l *Log) save() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := json.MarshalIndent(historyFile{Entries: l.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	// Write to temp file first, then rename for atomicity
	tmpPath := l.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename history file: %w", err)
	}

	return nil
}

// List returns the recorded entries, newest first
func (l *Log) List() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}

// Last returns the most recent entry, or false when the log is empty
func (l *Log) Last() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Len returns the number of recorded entries
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
