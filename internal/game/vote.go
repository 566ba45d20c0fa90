package game

import (
	"math"

	"github.com/sirupsen/logrus"
)

// voteKind tags the two independent consensus votes the game runs.
type voteKind string

const (
	voteReset        voteKind = "reset"
	voteStartAuction voteKind = "startAuction"
)

// voteSession collects named votes toward a threshold and fires an effect
// exactly once when the threshold is reached. The threshold is recomputed
// against the live connected-player count on every cast, so players leaving
// cannot wedge a vote short of consensus.
type voteSession struct {
	kind     voteKind
	voters   []string // insertion order, for display
	resolved bool
}

func newVoteSession(kind voteKind) *voteSession {
	return &voteSession{kind: kind}
}

func (v *voteSession) hasVoted(name string) bool {
	for _, voter := range v.voters {
		if voter == name {
			return true
		}
	}
	return false
}

// cast records one vote. Duplicate voters are rejected.
func (v *voteSession) cast(name string) error {
	if v.resolved {
		return rejectf(CodePhaseClosed, "vote already resolved")
	}
	if v.hasVoted(name) {
		return rejectf(CodeInvalidAction, "you have already voted")
	}
	v.voters = append(v.voters, name)
	return nil
}

// threshold derives the votes needed from the number of connected players.
// Reset needs a 2/3 supermajority; starting the auction needs everyone.
func (v *voteSession) threshold(activePlayers int) int {
	if activePlayers < 1 {
		activePlayers = 1
	}
	switch v.kind {
	case voteStartAuction:
		return activePlayers
	default:
		return int(math.Ceil(float64(activePlayers) * 2.0 / 3.0))
	}
}

// tally returns the current vote count against the recomputed threshold.
func (v *voteSession) tally(activePlayers int) VoteTallyPayload {
	return VoteTallyPayload{
		Votes:  len(v.voters),
		Needed: v.threshold(activePlayers),
		Voters: append([]string(nil), v.voters...),
	}
}

// voteEventType maps a vote kind to its tally broadcast event.
func (v *voteSession) eventType() GameEventType {
	if v.kind == voteStartAuction {
		return EventAuctionVote
	}
	return EventResetVote
}

// castVote funnels a vote through the session for the given kind, creating
// the session on first use, broadcasting the tally, and firing the vote's
// effect exactly once when consensus is reached. Lock held by caller.
func (g *AuctionGame) castVote(kind voteKind, voter string) error {
	session, ok := g.votes[kind]
	if !ok {
		session = newVoteSession(kind)
		g.votes[kind] = session
	}
	if err := session.cast(voter); err != nil {
		return err
	}

	active := g.countConnected()
	tally := session.tally(active)
	g.fireEvent(GameEvent{Type: session.eventType(), Payload: tally})
	g.log.WithFields(logrus.Fields{
		"game":  g.ID,
		"kind":  kind,
		"voter": voter,
		"votes": tally.Votes,
		"need":  tally.Needed,
	}).Info("vote recorded")

	if tally.Votes >= tally.Needed {
		session.resolved = true
		delete(g.votes, kind)
		switch kind {
		case voteStartAuction:
			g.beginAuction()
		case voteReset:
			g.reset()
		}
	}
	return nil
}
