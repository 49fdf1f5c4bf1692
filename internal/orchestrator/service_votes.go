package orchestrator

import (
	"context"
	"log/slog"
	"time"
)

// UpdateVotesRequest applies an administrator vote change.
type UpdateVotesRequest struct {
	Action      VoteAction
	LeftVotes   int64
	RightVotes  int64
	StreamID    StreamID
	NotifyUsers bool
}

// UpdateVotesResult carries the tally before and after the change.
type UpdateVotesResult struct {
	StreamID      StreamID    `json:"streamId,omitempty"`
	Before        VoteView    `json:"beforeUpdate"`
	After         VoteView    `json:"afterUpdate"`
	Backup        *VoteBackup `json:"backup,omitempty"`
	UpdateTime    time.Time   `json:"updateTime"`
	NotifiedUsers int         `json:"notifiedUsers"`
}

// UpdateVotes sets, adds to or resets a stream's tally.
func (o *Orchestrator) UpdateVotes(ctx context.Context, req UpdateVotesRequest) (UpdateVotesResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	key, err := o.voteKeyLocked(ctx, req.StreamID)
	if err != nil {
		return UpdateVotesResult{}, err
	}

	var change VoteChange
	switch req.Action {
	case VoteSet:
		change, err = o.votes.Set(key, req.LeftVotes, req.RightVotes)
	case VoteAdd:
		change, err = o.votes.Add(key, req.LeftVotes, req.RightVotes)
	case VoteReset:
		change, err = o.votes.Reset(key, 0, 0, true)
	default:
		err = validationf("action must be one of set, add, reset")
	}
	if err != nil {
		return UpdateVotesResult{}, err
	}
	return o.voteChangedLocked(key, change, req.NotifyUsers), nil
}

// ResetVotesRequest resets a tally, optionally to given counts.
type ResetVotesRequest struct {
	StreamID    StreamID
	ResetTo     *VoteTally
	SaveBackup  bool
	NotifyUsers bool
}

// ResetVotes resets a stream's tally and returns the backup, if taken.
func (o *Orchestrator) ResetVotes(ctx context.Context, req ResetVotesRequest) (UpdateVotesResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	key, err := o.voteKeyLocked(ctx, req.StreamID)
	if err != nil {
		return UpdateVotesResult{}, err
	}
	var to VoteTally
	if req.ResetTo != nil {
		to = *req.ResetTo
	}
	change, err := o.votes.Reset(key, to.LeftVotes, to.RightVotes, req.SaveBackup)
	if err != nil {
		return UpdateVotesResult{}, err
	}
	return o.voteChangedLocked(key, change, req.NotifyUsers), nil
}

func (o *Orchestrator) voteChangedLocked(key StreamID, change VoteChange, notify bool) UpdateVotesResult {
	res := UpdateVotesResult{
		StreamID:   key,
		Before:     NewVoteView(key, change.Before),
		After:      NewVoteView(key, change.After),
		Backup:     change.Backup,
		UpdateTime: o.clock().UTC(),
	}
	res.NotifiedUsers = o.publish(notify, EventVotesUpdated, res.After)
	return res
}

// voteKeyLocked resolves which tally a vote applies to: the named stream,
// else the live stream, else the debate-wide tally.
func (o *Orchestrator) voteKeyLocked(ctx context.Context, id StreamID) (StreamID, error) {
	if id != "" {
		if o.live.IsLive(id) {
			return id, nil
		}
		if _, err := o.streams.Get(ctx, id); err != nil {
			return "", err
		}
		return id, nil
	}
	return o.live.Global().StreamID, nil
}

// GetVotes returns the tally for a stream (or the live/debate-wide tally).
func (o *Orchestrator) GetVotes(ctx context.Context, id StreamID) (VoteView, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	key, err := o.voteKeyLocked(ctx, id)
	if err != nil {
		return VoteView{}, err
	}
	return NewVoteView(key, o.votes.Tally(key)), nil
}

// Ballot limits for CastVote.
const (
	ballotAllocation = 100
	defaultSideVotes = 10
	maxSideVotes     = 1000
)

// CastVoteRequest is a viewer ballot. Either LeftVotes and RightVotes split
// 100 points, or Side names one side and Votes how many votes it gets.
type CastVoteRequest struct {
	StreamID   StreamID `json:"streamId"`
	UserID     string   `json:"userId"`
	LeftVotes  *int64   `json:"leftVotes"`
	RightVotes *int64   `json:"rightVotes"`
	Side       string   `json:"side"`
	Votes      *int64   `json:"votes"`
}

// CastVoteResult is returned by CastVote.
type CastVoteResult struct {
	Added         VoteTally `json:"added"`
	Votes         VoteView  `json:"votes"`
	NotifiedUsers int       `json:"notifiedUsers"`
}

// CastVote adds a viewer's ballot to the tally and credits the user.
func (o *Orchestrator) CastVote(ctx context.Context, req CastVoteRequest) (CastVoteResult, error) {
	add, err := req.tally()
	if err != nil {
		return CastVoteResult{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	key, err := o.voteKeyLocked(ctx, req.StreamID)
	if err != nil {
		return CastVoteResult{}, err
	}
	change, err := o.votes.Add(key, add.LeftVotes, add.RightVotes)
	if err != nil {
		return CastVoteResult{}, err
	}
	if req.UserID != "" {
		o.creditUserLocked(ctx, req.UserID, add.Total())
	}

	view := NewVoteView(key, change.After)
	return CastVoteResult{
		Added:         add,
		Votes:         view,
		NotifiedUsers: o.publish(true, EventVotesUpdated, view),
	}, nil
}

func (r CastVoteRequest) tally() (VoteTally, error) {
	if r.LeftVotes != nil || r.RightVotes != nil {
		if r.LeftVotes == nil || r.RightVotes == nil {
			return VoteTally{}, validationf("leftVotes and rightVotes must both be set")
		}
		l, rt := *r.LeftVotes, *r.RightVotes
		if l < 0 || rt < 0 || l > ballotAllocation || rt > ballotAllocation || l+rt != ballotAllocation {
			return VoteTally{}, validationf("leftVotes and rightVotes must be 0..100 and sum to 100")
		}
		return VoteTally{LeftVotes: l, RightVotes: rt}, nil
	}

	n := int64(defaultSideVotes)
	if r.Votes != nil {
		n = *r.Votes
	}
	if n < 1 || n > maxSideVotes {
		return VoteTally{}, validationf("votes must be between 1 and %d", maxSideVotes)
	}
	switch r.Side {
	case "left":
		return VoteTally{LeftVotes: n}, nil
	case "right":
		return VoteTally{RightVotes: n}, nil
	}
	return VoteTally{}, validationf("side must be left or right")
}

// creditUserLocked adds votes to a known user's total. Unknown users and
// store failures are logged and ignored.
func (o *Orchestrator) creditUserLocked(ctx context.Context, userID string, votes int64) {
	users, err := loadRecord(ctx, o.store, CollectionUsers, []UserRecord{})
	if err != nil {
		o.log.Warn("load users failed", slog.String("error", err.Error()))
		return
	}
	for i := range users {
		if users[i].ID != userID {
			continue
		}
		users[i].TotalVotes += votes
		users[i].UpdatedAt = timePtr(o.clock().UTC())
		if err := saveRecord(ctx, o.store, CollectionUsers, users); err != nil {
			o.log.Warn("save users failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		}
		return
	}
	o.log.Debug("vote from unknown user", slog.String("user_id", userID))
}
