package orchestrator

import (
	"math"
	"sync"
)

// maxVoteBackups bounds the reset snapshots kept per stream.
const maxVoteBackups = 20

// VoteAction selects how UpdateVotes applies its counts.
type VoteAction string

const (
	VoteSet   VoteAction = "set"
	VoteAdd   VoteAction = "add"
	VoteReset VoteAction = "reset"
)

// VoteChange is the before/after pair returned by every ledger mutation.
type VoteChange struct {
	Before VoteTally   `json:"before"`
	After  VoteTally   `json:"after"`
	Backup *VoteBackup `json:"backup,omitempty"`
}

// VoteLedger accumulates left/right votes per stream. The empty StreamID is
// the debate-wide tally used when no stream is live. Counts are in memory only.
type VoteLedger struct {
	mu      sync.Mutex
	tallies map[StreamID]VoteTally
	backups map[StreamID][]VoteBackup
	clock   Clock
	newID   func() string
}

// NewVoteLedger returns an empty ledger.
func NewVoteLedger(clock Clock, newID func() string) *VoteLedger {
	return &VoteLedger{
		tallies: make(map[StreamID]VoteTally),
		backups: make(map[StreamID][]VoteBackup),
		clock:   clock,
		newID:   newID,
	}
}

// Tally returns the current counts for a stream.
func (l *VoteLedger) Tally(id StreamID) VoteTally {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tallies[id]
}

// Add increments both sides. Negative counts are rejected.
func (l *VoteLedger) Add(id StreamID, left, right int64) (VoteChange, error) {
	if left < 0 || right < 0 {
		return VoteChange{}, validationf("vote counts must be non-negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	before := l.tallies[id]
	if left > math.MaxInt64-before.LeftVotes || right > math.MaxInt64-before.RightVotes {
		return VoteChange{}, validationf("vote counts overflow")
	}
	after := VoteTally{LeftVotes: before.LeftVotes + left, RightVotes: before.RightVotes + right}
	if err := checkTotal(after); err != nil {
		return VoteChange{}, err
	}
	l.tallies[id] = after
	return VoteChange{Before: before, After: after}, nil
}

// Set overwrites both sides.
func (l *VoteLedger) Set(id StreamID, left, right int64) (VoteChange, error) {
	if left < 0 || right < 0 {
		return VoteChange{}, validationf("vote counts must be non-negative")
	}
	after := VoteTally{LeftVotes: left, RightVotes: right}
	if err := checkTotal(after); err != nil {
		return VoteChange{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	before := l.tallies[id]
	l.tallies[id] = after
	return VoteChange{Before: before, After: after}, nil
}

// Reset sets the tally to resetLeft/resetRight, snapshotting the previous
// counts first when backup is true.
func (l *VoteLedger) Reset(id StreamID, resetLeft, resetRight int64, backup bool) (VoteChange, error) {
	if resetLeft < 0 || resetRight < 0 {
		return VoteChange{}, validationf("reset counts must be non-negative")
	}
	if err := checkTotal(VoteTally{LeftVotes: resetLeft, RightVotes: resetRight}); err != nil {
		return VoteChange{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	before := l.tallies[id]
	change := VoteChange{Before: before, After: VoteTally{LeftVotes: resetLeft, RightVotes: resetRight}}
	if backup {
		b := VoteBackup{
			BackupID:   l.newID(),
			StreamID:   id,
			LeftVotes:  before.LeftVotes,
			RightVotes: before.RightVotes,
			Timestamp:  l.clock().UTC(),
		}
		list := append(l.backups[id], b)
		if len(list) > maxVoteBackups {
			list = list[len(list)-maxVoteBackups:]
		}
		l.backups[id] = list
		change.Backup = &b
	}
	l.tallies[id] = change.After
	return change, nil
}

// Backups returns the reset snapshots for a stream, oldest first.
func (l *VoteLedger) Backups(id StreamID) []VoteBackup {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]VoteBackup(nil), l.backups[id]...)
}

// Snapshot copies every tally.
func (l *VoteLedger) Snapshot() map[StreamID]VoteTally {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[StreamID]VoteTally, len(l.tallies))
	for id, t := range l.tallies {
		out[id] = t
	}
	return out
}

// checkTotal rejects non-negative tallies whose Total would overflow int64.
func checkTotal(t VoteTally) error {
	if t.LeftVotes > math.MaxInt64-t.RightVotes {
		return validationf("vote total overflows")
	}
	return nil
}

// Percentages returns round(side/total*100) for each side, or 50/50 when
// there are no votes.
func Percentages(t VoteTally) (left, right int) {
	total := t.Total()
	if total <= 0 {
		return 50, 50
	}
	left = int(math.Round(float64(t.LeftVotes) / float64(total) * 100))
	right = int(math.Round(float64(t.RightVotes) / float64(total) * 100))
	return left, right
}

// NewVoteView derives percentages for a tally.
func NewVoteView(id StreamID, t VoteTally) VoteView {
	l, r := Percentages(t)
	return VoteView{
		StreamID:        id,
		LeftVotes:       t.LeftVotes,
		RightVotes:      t.RightVotes,
		TotalVotes:      t.Total(),
		LeftPercentage:  l,
		RightPercentage: r,
	}
}
