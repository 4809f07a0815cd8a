package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/coboltblu/exchange/pkg/events"
)

// Journal appends committed events to a file, one JSON object per line, for
// tools that tail the venue without speaking HTTP. It is an export only; the
// venue never reads it back.
type Journal struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

func OpenJournal(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes e and flushes it to the file.
func (j *Journal) Append(e events.Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(append(line, '\n')); err != nil {
		return err
	}
	return j.w.Flush()
}

// Follow appends every event delivered by sub until it closes.
func (j *Journal) Follow(sub *events.Subscription) error {
	for e := range sub.C() {
		if err := j.Append(e); err != nil {
			return fmt.Errorf("journal event %d: %w", e.Seq, err)
		}
	}
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.w.Flush(); err != nil {
		j.f.Close()
		return err
	}
	return j.f.Close()
}
