package daemon

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// CounterStore persists suspend and dark resume counts across reboots. The
// counts inform field reports; losing an interval is acceptable, corrupting
// the file is not, so writes go through a temp file rename.
type CounterStore struct {
	path string

	mu sync.Mutex
	c  storedCounters
}

type storedCounters struct {
	SuspendCount    uint64 `json:"suspendCount"`
	DarkResumeCount uint64 `json:"darkResumeCount"`
}

func NewCounterStore(path string) *CounterStore {
	return &CounterStore{path: path}
}

// Load reads persisted counters. A missing or unreadable file starts from
// zero.
func (s *CounterStore) Load() {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.Warnf("failed to read counters from %s: %v", s.path, err)
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := json.Unmarshal(b, &s.c); err != nil {
		logrus.Warnf("failed to parse counters from %s: %v", s.path, err)
		s.c = storedCounters{}
	}
}

// Persist writes the counters to disk.
func (s *CounterStore) Persist() {
	s.mu.Lock()
	b, err := json.MarshalIndent(s.c, "", "  ")
	s.mu.Unlock()
	if err != nil {
		logrus.Errorf("failed to marshal counters: %v", err)
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		logrus.Errorf("failed to write counters to %s: %v", tmp, err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		logrus.Errorf("failed to replace counters at %s: %v", s.path, err)
	}
}

func (s *CounterStore) IncSuspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.SuspendCount++
}

func (s *CounterStore) IncDarkResume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.DarkResumeCount++
}

func (s *CounterStore) SuspendCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.SuspendCount
}

func (s *CounterStore) DarkResumeCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.DarkResumeCount
}
