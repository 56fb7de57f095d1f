package stm

import (
	"fmt"
	"sync/atomic"
)

// Stats are the per-thread counters. They are written by the owning thread
// and may be read concurrently.
type Stats struct {
	Transactions atomic.Uint64 // Begin calls, retries included
	Commits      atomic.Uint64
	Rollbacks    atomic.Uint64
	Conflicts    atomic.Uint64 // Failed validations
	Faults       atomic.Uint64 // Faults raised inside a region
	Predictions  atomic.Uint64
	ReadEntries  atomic.Uint64 // Read log items of committed transactions
	WriteEntries atomic.Uint64 // Write log items of committed transactions
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Transactions uint64 `json:"transactions"`
	Commits      uint64 `json:"commits"`
	Rollbacks    uint64 `json:"rollbacks"`
	Conflicts    uint64 `json:"conflicts"`
	Faults       uint64 `json:"faults"`
	Predictions  uint64 `json:"predictions"`
	ReadEntries  uint64 `json:"read_entries"`
	WriteEntries uint64 `json:"write_entries"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Transactions: s.Transactions.Load(),
		Commits:      s.Commits.Load(),
		Rollbacks:    s.Rollbacks.Load(),
		Conflicts:    s.Conflicts.Load(),
		Faults:       s.Faults.Load(),
		Predictions:  s.Predictions.Load(),
		ReadEntries:  s.ReadEntries.Load(),
		WriteEntries: s.WriteEntries.Load(),
	}
}

func (s *Stats) reset() {
	s.Transactions.Store(0)
	s.Commits.Store(0)
	s.Rollbacks.Store(0)
	s.Conflicts.Store(0)
	s.Faults.Store(0)
	s.Predictions.Store(0)
	s.ReadEntries.Store(0)
	s.WriteEntries.Store(0)
}

// Add returns the field-wise sum of s and o.
func (s StatsSnapshot) Add(o StatsSnapshot) StatsSnapshot {
	return StatsSnapshot{
		Transactions: s.Transactions + o.Transactions,
		Commits:      s.Commits + o.Commits,
		Rollbacks:    s.Rollbacks + o.Rollbacks,
		Conflicts:    s.Conflicts + o.Conflicts,
		Faults:       s.Faults + o.Faults,
		Predictions:  s.Predictions + o.Predictions,
		ReadEntries:  s.ReadEntries + o.ReadEntries,
		WriteEntries: s.WriteEntries + o.WriteEntries,
	}
}

// Sub returns s minus an earlier snapshot o.
func (s StatsSnapshot) Sub(o StatsSnapshot) StatsSnapshot {
	return StatsSnapshot{
		Transactions: s.Transactions - o.Transactions,
		Commits:      s.Commits - o.Commits,
		Rollbacks:    s.Rollbacks - o.Rollbacks,
		Conflicts:    s.Conflicts - o.Conflicts,
		Faults:       s.Faults - o.Faults,
		Predictions:  s.Predictions - o.Predictions,
		ReadEntries:  s.ReadEntries - o.ReadEntries,
		WriteEntries: s.WriteEntries - o.WriteEntries,
	}
}

// RollbackRatio is rollbacks per commit.
func (s StatsSnapshot) RollbackRatio() float64 {
	if s.Commits == 0 {
		return 0
	}
	return float64(s.Rollbacks) / float64(s.Commits)
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("transactions=%d commits=%d rollbacks=%d conflicts=%d faults=%d predictions=%d",
		s.Transactions, s.Commits, s.Rollbacks, s.Conflicts, s.Faults, s.Predictions)
}
