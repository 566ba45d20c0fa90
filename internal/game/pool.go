package game

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Rikiyaaa/auction-server/internal/models"
)

// poolState tracks the end-game distribution of unsold creatures. Slots are
// shuffled and picked blind; order is fixed at phase start, poorest first.
type poolState struct {
	slots     []*models.Creature // nil once picked
	order     []uuid.UUID
	turnIdx   int
	remaining int // seconds left on the pick countdown, for snapshots
	finished  bool
}

func (ps *poolState) currentPicker() uuid.UUID {
	if ps.finished || len(ps.order) == 0 {
		return uuid.Nil
	}
	return ps.order[ps.turnIdx%len(ps.order)]
}

func (ps *poolState) remainingSlots() int {
	n := 0
	for _, slot := range ps.slots {
		if slot != nil {
			n++
		}
	}
	return n
}

// startPoolPhase moves the room into the end game: unsold lots become a
// shuffled mystery pool, distributed round-robin starting with the poorest
// player. Lock held by caller.
func (g *AuctionGame) startPoolPhase() {
	g.stopPhaseTimer()
	g.lot = nil
	g.setPhase(PhaseGameOver)

	pool := &poolState{}
	for i := range g.unsold {
		pool.slots = append(pool.slots, &g.unsold[i])
	}
	g.rng.Shuffle(len(pool.slots), func(i, j int) {
		pool.slots[i], pool.slots[j] = pool.slots[j], pool.slots[i]
	})

	// Poorest picks first; seat order breaks ties so the order is stable.
	pool.order = append([]uuid.UUID(nil), g.seating...)
	sort.SliceStable(pool.order, func(i, j int) bool {
		a, b := g.playerByID(pool.order[i]), g.playerByID(pool.order[j])
		if a.Balance != b.Balance {
			return a.Balance < b.Balance
		}
		return a.Seat < b.Seat
	})
	g.pool = pool

	g.logAction("", "pool_start", map[string]interface{}{"unsold": len(pool.slots)})
	g.log.WithFields(logrus.Fields{"game": g.ID, "unsold": len(pool.slots)}).Info("mystery pool started")

	if len(pool.slots) == 0 {
		g.finalizeGame()
		return
	}
	g.notify(fmt.Sprintf("%d unsold creatures go into the mystery pool", len(pool.slots)))
	g.beginPoolTurn()
}

// beginPoolTurn seats the turn on the next picker who is connected and has
// collection space, or finalizes when nobody qualifies. Lock held by caller.
func (g *AuctionGame) beginPoolTurn() {
	pool := g.pool
	if pool == nil || pool.finished {
		return
	}
	if pool.remainingSlots() == 0 {
		g.finalizeGame()
		return
	}

	n := len(pool.order)
	for i := 0; i < n; i++ {
		idx := (pool.turnIdx + i) % n
		p := g.playerByID(pool.order[idx])
		if p == nil || !p.Connected || len(p.Collection) >= g.Rules.CollectionCap {
			continue
		}
		pool.turnIdx = idx
		pool.remaining = g.Rules.TurnSeconds
		g.broadcastPoolState()

		pickerID := p.ID
		g.startPhaseTimer(g.Rules.TurnSeconds, g.tickPool, func() {
			g.poolTurnTimeout(pickerID)
		})
		return
	}
	// Everyone is full or gone; leftover slots stay unclaimed.
	g.finalizeGame()
}

// pickPool claims one blind slot for the current picker.
func (g *AuctionGame) pickPool(p *models.Player, index int) error {
	pool := g.pool
	if g.Phase != PhaseGameOver || pool == nil || pool.finished {
		return rejectf(CodePhaseClosed, "the mystery pool is not open")
	}
	if pool.currentPicker() != p.ID {
		return rejectf(CodeInvalidAction, "it is not your turn to pick")
	}
	if len(p.Collection) >= g.Rules.CollectionCap {
		return rejectf(CodeExhaustedResource, "your collection is full")
	}
	if index < 0 || index >= len(pool.slots) {
		return rejectf(CodeInvalidAction, "pool slot %d does not exist", index)
	}
	creature := pool.slots[index]
	if creature == nil {
		return rejectf(CodeInvalidAction, "pool slot %d is already taken", index)
	}

	pool.slots[index] = nil
	p.Collection = append(p.Collection, *creature)

	g.fireEvent(GameEvent{Type: EventCreatureRevealed, Payload: CreatureRevealedPayload{
		Creature: creature,
		PlayerID: p.ID,
		Index:    index,
	}})
	g.notify(fmt.Sprintf("%s drew %s from the mystery pool", p.Name, creature.Name))
	g.logAction(p.Name, "pool_pick", map[string]interface{}{"creature": creature.Name, "index": index})
	g.sendPlayerUpdate(p)

	g.advancePoolTurn()
	return nil
}

// advancePoolTurn moves past the current picker. Lock held by caller.
func (g *AuctionGame) advancePoolTurn() {
	pool := g.pool
	if pool == nil || pool.finished || len(pool.order) == 0 {
		return
	}
	g.stopPhaseTimer()
	pool.turnIdx = (pool.turnIdx + 1) % len(pool.order)
	g.beginPoolTurn()
}

// tickPool is the per-second countdown hook for the pick timer.
func (g *AuctionGame) tickPool(remaining int) {
	if g.pool == nil || g.pool.finished {
		return
	}
	g.pool.remaining = remaining
	g.broadcastPoolState()
}

// poolTurnTimeout forfeits the pick of a picker who ran out the clock.
func (g *AuctionGame) poolTurnTimeout(pickerID uuid.UUID) {
	pool := g.pool
	if pool == nil || pool.finished || pool.currentPicker() != pickerID {
		return
	}
	if p := g.playerByID(pickerID); p != nil {
		g.notify(fmt.Sprintf("%s did not pick in time", p.Name))
		g.logAction(p.Name, "pool_pick_timeout", nil)
	}
	g.advancePoolTurn()
}

// finalizeGame computes standings, announces the winner, hands results to
// the persistence sink, and arms the lobby restart. Lock held by caller.
func (g *AuctionGame) finalizeGame() {
	g.stopPhaseTimer()
	if g.pool != nil {
		g.pool.finished = true
	}

	results := g.finalResults()
	g.fireEvent(GameEvent{Type: EventGameResults, Payload: g.poolSnapshot()})
	g.fireEvent(GameEvent{Type: EventGameFinal, Payload: results})
	if results.Winner != nil {
		g.notify(fmt.Sprintf("%s wins with a score of %d!", results.Winner.Name, results.Winner.FinalScore))
	}
	g.logAction("", "game_final", map[string]interface{}{"players": len(results.Players)})
	g.log.WithFields(logrus.Fields{"game": g.ID, "players": len(results.Players)}).Info("game finished")

	if g.PersistResultsFn != nil {
		go g.PersistResultsFn(results)
	}
	g.scheduleRestart()
}

// finalResults ranks players by final score (balance plus collection value),
// descending, seat order breaking ties.
func (g *AuctionGame) finalResults() FinalResultsPayload {
	var results FinalResultsPayload
	for _, p := range g.playersInSeatingOrder() {
		results.Players = append(results.Players, FinalStanding{
			ID:              p.ID,
			Name:            p.Name,
			Balance:         p.Balance,
			Collection:      append([]models.Creature(nil), p.Collection...),
			CollectionValue: p.CollectionValue(),
			FinalScore:      p.FinalScore(),
		})
	}
	sort.SliceStable(results.Players, func(i, j int) bool {
		return results.Players[i].FinalScore > results.Players[j].FinalScore
	})
	if len(results.Players) > 0 {
		winner := results.Players[0]
		results.Winner = &winner
	}
	return results
}

// poolSnapshot builds the end-game state for broadcast. Slot contents stay
// hidden; only occupancy is public until a pick reveals a creature.
func (g *AuctionGame) poolSnapshot() PoolSnapshot {
	snap := PoolSnapshot{Players: g.playersInSeatingOrder()}
	if g.pool == nil {
		return snap
	}
	for _, slot := range g.pool.slots {
		snap.PoolSlots = append(snap.PoolSlots, slot != nil)
	}
	if !g.pool.finished {
		snap.TimeLeft = g.pool.remaining
		if p := g.playerByID(g.pool.currentPicker()); p != nil {
			snap.CurrentPickingPlayer = p
		}
	}
	return snap
}

func (g *AuctionGame) broadcastPoolState() {
	g.fireEvent(GameEvent{Type: EventGameResults, Payload: g.poolSnapshot()})
}
