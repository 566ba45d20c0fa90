package game

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Rikiyaaa/auction-server/internal/models"
)

// lotState is the live bidding state for the creature currently on the
// block. One instance exists at a time; it is replaced wholesale when the
// next lot begins.
type lotState struct {
	creature      *models.Creature
	currentBid    int
	highestBidder uuid.UUID // Nil until the first accepted bid
	turnSeat      int       // index into the seating order
	exited        map[uuid.UUID]bool
	remaining     int // seconds left on the active countdown, for snapshots

	preview         bool
	awaitingConfirm bool
	confirmFrom     uuid.UUID
}

// beginAuction transitions from card selection to the auction proper.
// Lock held by caller (vote resolution).
func (g *AuctionGame) beginAuction() {
	if g.Phase != PhaseCardSelection || len(g.seating) == 0 {
		return
	}
	g.lots = g.freshLots()
	g.unsold = nil
	g.lastCloserSeat = -1
	g.setPhase(PhaseAuction)
	g.logAction("", "auction_start", map[string]interface{}{"lots": len(g.lots)})
	g.log.WithFields(logrus.Fields{"game": g.ID, "lots": len(g.lots)}).Info("auction started")
	g.nextLot()
}

// nextLot puts the next creature on the block, or hands over to the pool
// phase when the sequence is exhausted. Lock held by caller.
func (g *AuctionGame) nextLot() {
	g.stopPhaseTimer()
	g.lot = nil

	if len(g.lots) == 0 {
		g.startPoolPhase()
		return
	}

	creature := g.lots[0]
	g.lots = g.lots[1:]

	lot := &lotState{
		creature:   &creature,
		currentBid: creature.BasePrice,
		turnSeat:   (g.lastCloserSeat + 1) % len(g.seating),
		exited:     make(map[uuid.UUID]bool),
	}
	// Players with a full collection sit out every remaining lot.
	for _, p := range g.Players {
		if len(p.Collection) >= g.Rules.CollectionCap {
			lot.exited[p.ID] = true
		}
	}
	g.lot = lot

	g.notify(fmt.Sprintf("%s is up for auction! Base price: %d coins", creature.Name, creature.BasePrice))
	g.logAction("", "lot_open", map[string]interface{}{"creature": creature.Name, "basePrice": creature.BasePrice})
	g.beginTurn()
}

// beginTurn re-evaluates the lot after every accepted action: resolves it
// if bidder interest is exhausted, enters preview when nobody can afford
// the minimum raise, auto-passes absent players, and otherwise arms the
// turn countdown for whoever is up. Lock held by caller.
func (g *AuctionGame) beginTurn() {
	lot := g.lot
	if lot == nil || lot.awaitingConfirm || lot.preview {
		return
	}

	if lot.highestBidder != uuid.Nil {
		g.exitUnaffordable()
	}
	eligible := g.eligiblePlayers()
	if len(eligible) == 0 {
		// Everyone is out, but a standing bid still belongs to someone:
		// confirmation is the only road to a sale, and its decline path
		// is the only road from a bid to no-sale.
		if lot.highestBidder != uuid.Nil {
			g.startConfirmation()
		} else {
			g.resolveNoSale()
		}
		return
	}
	if lot.highestBidder != uuid.Nil && len(eligible) == 1 && eligible[0].ID == lot.highestBidder {
		g.startConfirmation()
		return
	}
	if lot.highestBidder == uuid.Nil && !g.anyoneCanAfford(lot.currentBid+g.Rules.minIncrement()) {
		g.enterPreview()
		return
	}

	seat := g.nextEligibleSeat(lot.turnSeat)
	if seat < 0 {
		g.resolveNoSale()
		return
	}
	lot.turnSeat = seat

	current := g.seatedPlayer(seat)
	if current == nil {
		g.resolveNoSale()
		return
	}
	if !current.Connected {
		if g.allEligibleDisconnected() {
			// Nobody left to act; settle the lot instead of passing forever.
			if lot.highestBidder != uuid.Nil {
				g.startConfirmation()
			} else {
				g.resolveNoSale()
			}
			return
		}
		g.autoPass(current, "disconnected")
		return
	}

	lot.remaining = g.Rules.TurnSeconds
	g.broadcastAuctionState()
	g.fireEventToPlayer(current.ID, GameEvent{Type: EventYourTurn})

	actorID := current.ID
	g.startPhaseTimer(g.Rules.TurnSeconds, g.tickAuction, func() {
		g.turnTimeout(actorID)
	})
}

// exitUnaffordable exits every player who can no longer answer the standing
// bid with the smallest legal raise. Being priced out is an eligibility
// exit, not a skip: no budget is spent. The highest bidder is exempt; they
// owe nothing beyond their own bid.
func (g *AuctionGame) exitUnaffordable() {
	lot := g.lot
	need := lot.currentBid + g.Rules.minIncrement()
	for _, p := range g.eligiblePlayers() {
		if p.ID == lot.highestBidder || p.Balance >= need {
			continue
		}
		lot.exited[p.ID] = true
		g.notify(fmt.Sprintf("%s cannot meet the minimum raise and is out of this lot", p.Name))
		g.logAction(p.Name, "priced_out", map[string]interface{}{"needed": need, "balance": p.Balance})
	}
}

// placeBid raises the current bid by one of the fixed increments.
func (g *AuctionGame) placeBid(p *models.Player, amount int) error {
	lot := g.lot
	if g.Phase != PhaseAuction || lot == nil {
		return rejectf(CodePhaseClosed, "no lot is open for bidding")
	}
	if lot.preview {
		return rejectf(CodeInvalidAction, "bidding is disabled during preview")
	}
	if lot.awaitingConfirm {
		return rejectf(CodeInvalidAction, "waiting for purchase confirmation")
	}
	if g.currentBidderID() != p.ID {
		return rejectf(CodeInvalidAction, "it is not your turn to bid")
	}
	if !g.Rules.legalIncrement(amount) {
		return rejectf(CodeInvalidAction, "bid increment %d is not allowed", amount)
	}
	proposed := lot.currentBid + amount
	if p.Balance < proposed {
		return rejectf(CodeInsufficientFunds, "bid of %d exceeds your balance of %d", proposed, p.Balance)
	}

	lot.currentBid = proposed
	lot.highestBidder = p.ID
	g.notify(fmt.Sprintf("%s bid +%d — current bid is %d coins", p.Name, amount, proposed))
	g.logAction(p.Name, "bid", map[string]interface{}{"amount": amount, "total": proposed})

	g.advanceTurnPointer()
	g.beginTurn()
	return nil
}

// passBid lets the actor sit this round out while staying in the lot.
func (g *AuctionGame) passBid(p *models.Player) error {
	lot := g.lot
	if g.Phase != PhaseAuction || lot == nil {
		return rejectf(CodePhaseClosed, "no lot is open for bidding")
	}
	if lot.preview {
		return rejectf(CodeInvalidAction, "actions are disabled during preview")
	}
	if lot.awaitingConfirm {
		return rejectf(CodeInvalidAction, "waiting for purchase confirmation")
	}
	if g.currentBidderID() != p.ID {
		return rejectf(CodeInvalidAction, "it is not your turn")
	}

	g.notify(fmt.Sprintf("%s passed", p.Name))
	g.logAction(p.Name, "pass", nil)
	g.advanceTurnPointer()
	g.beginTurn()
	return nil
}

// skipBid permanently exits the actor from this lot, spending one skip.
func (g *AuctionGame) skipBid(p *models.Player) error {
	lot := g.lot
	if g.Phase != PhaseAuction || lot == nil {
		return rejectf(CodePhaseClosed, "no lot is open for bidding")
	}
	if lot.preview {
		return rejectf(CodeInvalidAction, "actions are disabled during preview")
	}
	if lot.awaitingConfirm {
		return rejectf(CodeInvalidAction, "waiting for purchase confirmation")
	}
	if g.currentBidderID() != p.ID {
		return rejectf(CodeInvalidAction, "it is not your turn")
	}
	if p.SkipsLeft <= 0 {
		return rejectf(CodeExhaustedResource, "no skips left")
	}

	p.SkipsLeft--
	g.logAction(p.Name, "skip", map[string]interface{}{"skipsLeft": p.SkipsLeft})

	// A highest bidder skipping as the sole remaining eligible player is
	// accepting the lot at their own bid.
	if lot.highestBidder == p.ID && g.soleEligible(p.ID) {
		g.sendPlayerUpdate(p)
		g.finalizeSale(p)
		return nil
	}

	lot.exited[p.ID] = true
	g.notify(fmt.Sprintf("%s skipped this auction (%d skips left)", p.Name, p.SkipsLeft))
	g.sendPlayerUpdate(p)
	g.advanceTurnPointer()
	g.beginTurn()
	return nil
}

// confirmPurchase completes the purchase handshake for the highest bidder.
// Declining is an exit: the lot re-resolves and usually goes unsold.
func (g *AuctionGame) confirmPurchase(p *models.Player, confirm bool) error {
	lot := g.lot
	if g.Phase != PhaseAuction || lot == nil || !lot.awaitingConfirm {
		return rejectf(CodePhaseClosed, "no purchase is awaiting confirmation")
	}
	if lot.confirmFrom != p.ID {
		return rejectf(CodeInvalidAction, "this purchase is not yours to confirm")
	}

	g.stopPhaseTimer()
	lot.awaitingConfirm = false
	lot.confirmFrom = uuid.Nil

	if confirm {
		g.finalizeSale(p)
		return nil
	}

	// Declining exits the buyer without spending a skip; it was the
	// engine, not the player, that opened the handshake. The bid is
	// rescinded with them so the lot can settle as unsold.
	lot.exited[p.ID] = true
	lot.highestBidder = uuid.Nil
	g.notify(fmt.Sprintf("%s declined the purchase of %s", p.Name, lot.creature.Name))
	g.logAction(p.Name, "purchase_declined", map[string]interface{}{"creature": lot.creature.Name})
	g.beginTurn()
	return nil
}

// autoPass advances past a player who cannot act (timeout or disconnect).
// It is always a pass, never a skip: a transient drop must not burn budget.
func (g *AuctionGame) autoPass(p *models.Player, reason string) {
	g.notify(fmt.Sprintf("%s passed (%s)", p.Name, reason))
	g.logAction(p.Name, "auto_pass", map[string]interface{}{"reason": reason})
	g.advanceTurnPointer()
	g.beginTurn()
}

// turnTimeout fires when the turn countdown expires with no action.
func (g *AuctionGame) turnTimeout(playerID uuid.UUID) {
	lot := g.lot
	if lot == nil || lot.awaitingConfirm || lot.preview {
		return
	}
	if g.currentBidderID() != playerID {
		return // stale: the turn already moved on
	}
	p := g.playerByID(playerID)
	if p == nil {
		return
	}
	g.autoPass(p, "time expired")
}

// startConfirmation opens the purchase handshake with the highest bidder.
// Confirmation must be affirmative; silence or decline falls through to the
// no-sale path.
func (g *AuctionGame) startConfirmation() {
	lot := g.lot
	buyer := g.playerByID(lot.highestBidder)
	if buyer == nil {
		g.resolveNoSale()
		return
	}

	lot.awaitingConfirm = true
	lot.confirmFrom = buyer.ID
	lot.remaining = g.Rules.ConfirmSeconds
	g.broadcastAuctionState()
	g.sendConfirmRequest(buyer)
	g.logAction(buyer.Name, "confirm_requested", map[string]interface{}{"creature": lot.creature.Name, "price": lot.currentBid})

	buyerID := buyer.ID
	g.startPhaseTimer(g.Rules.ConfirmSeconds, g.tickAuction, func() {
		g.confirmTimeout(buyerID)
	})
}

// confirmTimeout treats an unanswered handshake as a decline.
func (g *AuctionGame) confirmTimeout(buyerID uuid.UUID) {
	lot := g.lot
	if lot == nil || !lot.awaitingConfirm || lot.confirmFrom != buyerID {
		return
	}
	buyer := g.playerByID(buyerID)
	if buyer == nil {
		return
	}
	lot.awaitingConfirm = false
	lot.confirmFrom = uuid.Nil
	lot.exited[buyerID] = true
	lot.highestBidder = uuid.Nil
	g.notify(fmt.Sprintf("%s did not confirm in time", buyer.Name))
	g.logAction(buyer.Name, "confirm_timeout", nil)
	g.beginTurn()
}

func (g *AuctionGame) sendConfirmRequest(buyer *models.Player) {
	lot := g.lot
	g.fireEventToPlayer(buyer.ID, GameEvent{Type: EventConfirmPurchase, Payload: ConfirmPurchasePayload{
		Creature: lot.creature,
		Price:    lot.currentBid,
		Seconds:  g.Rules.ConfirmSeconds,
	}})
}

// finalizeSale executes the transfer: debit, inventory append, lot consumed.
func (g *AuctionGame) finalizeSale(buyer *models.Player) {
	lot := g.lot
	if buyer.Balance < lot.currentBid {
		// Bid validation guarantees this never happens; treat it as a
		// no-sale rather than driving a balance negative.
		g.log.WithFields(logrus.Fields{
			"game": g.ID, "player": buyer.Name, "bid": lot.currentBid, "balance": buyer.Balance,
		}).Error("sale aborted: bid exceeds balance")
		g.resolveNoSale()
		return
	}

	buyer.Balance -= lot.currentBid
	buyer.Collection = append(buyer.Collection, *lot.creature)
	g.lastCloserSeat = buyer.Seat

	g.notify(fmt.Sprintf("SOLD! %s bought %s for %d coins", buyer.Name, lot.creature.Name, lot.currentBid))
	g.logAction(buyer.Name, "sold", map[string]interface{}{
		"creature": lot.creature.Name,
		"price":    lot.currentBid,
		"balance":  buyer.Balance,
	})
	g.log.WithFields(logrus.Fields{
		"game": g.ID, "player": buyer.Name, "lot": lot.creature.Name, "price": lot.currentBid,
	}).Info("lot sold")

	g.sendPlayerUpdate(buyer)
	g.nextLot()
}

// resolveNoSale discards the lot unsold into the mystery pool.
func (g *AuctionGame) resolveNoSale() {
	lot := g.lot
	if lot == nil {
		return
	}
	g.unsold = append(g.unsold, *lot.creature)
	g.lastCloserSeat = lot.turnSeat
	g.notify(fmt.Sprintf("%s goes unsold into the mystery pool", lot.creature.Name))
	g.logAction("", "no_sale", map[string]interface{}{"creature": lot.creature.Name})
	g.nextLot()
}

// enterPreview starts the short showcase window for a lot nobody can
// afford. All player actions are rejected until the countdown discards it.
func (g *AuctionGame) enterPreview() {
	lot := g.lot
	lot.preview = true
	lot.remaining = g.Rules.PreviewSeconds
	g.notify(fmt.Sprintf("No one can afford %s — preview only", lot.creature.Name))
	g.logAction("", "preview_start", map[string]interface{}{"creature": lot.creature.Name})
	g.broadcastAuctionState()
	g.startPhaseTimer(g.Rules.PreviewSeconds, g.tickAuction, func() {
		if g.lot == lot && lot.preview {
			g.resolveNoSale()
		}
	})
}

// tickAuction is the shared per-second countdown hook for auction timers.
func (g *AuctionGame) tickAuction(remaining int) {
	if g.lot == nil {
		return
	}
	g.lot.remaining = remaining
	g.broadcastAuctionState()
}

// ---------------------------------------------------------------------------
// Eligibility
// ---------------------------------------------------------------------------

// eligiblePlayers returns everyone still in the running for the current
// lot, in seating order. Disconnected players stay eligible; the engine
// passes for them.
func (g *AuctionGame) eligiblePlayers() []*models.Player {
	var out []*models.Player
	for _, id := range g.seating {
		if g.lot.exited[id] {
			continue
		}
		if p := g.playerByID(id); p != nil {
			out = append(out, p)
		}
	}
	return out
}

// soleEligible reports whether id is the only non-exited player left.
func (g *AuctionGame) soleEligible(id uuid.UUID) bool {
	for _, other := range g.seating {
		if other == id {
			continue
		}
		if !g.lot.exited[other] {
			return false
		}
	}
	return !g.lot.exited[id]
}

// anyoneCanAfford reports whether any eligible player can cover the price.
func (g *AuctionGame) anyoneCanAfford(price int) bool {
	for _, p := range g.eligiblePlayers() {
		if p.Balance >= price {
			return true
		}
	}
	return false
}

func (g *AuctionGame) allEligibleDisconnected() bool {
	for _, p := range g.eligiblePlayers() {
		if p.Connected {
			return false
		}
	}
	return true
}

// nextEligibleSeat scans seats starting at from (inclusive, wrapping) for a
// player who has not exited the lot. Returns -1 when everyone has.
func (g *AuctionGame) nextEligibleSeat(from int) int {
	n := len(g.seating)
	if n == 0 {
		return -1
	}
	for i := 0; i < n; i++ {
		seat := (from + i) % n
		if !g.lot.exited[g.seating[seat]] {
			return seat
		}
	}
	return -1
}

// advanceTurnPointer moves the turn to the next eligible seat after the
// current one.
func (g *AuctionGame) advanceTurnPointer() {
	if g.lot == nil || len(g.seating) == 0 {
		return
	}
	if seat := g.nextEligibleSeat((g.lot.turnSeat + 1) % len(g.seating)); seat >= 0 {
		g.lot.turnSeat = seat
	}
}

// currentBidderID is the player whose turn it is, or Nil between turns.
func (g *AuctionGame) currentBidderID() uuid.UUID {
	if g.lot == nil || g.lot.awaitingConfirm || g.lot.preview {
		return uuid.Nil
	}
	if p := g.seatedPlayer(g.lot.turnSeat); p != nil {
		return p.ID
	}
	return uuid.Nil
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

// auctionSnapshot builds the full auction-phase state for broadcast.
func (g *AuctionGame) auctionSnapshot() AuctionSnapshot {
	snap := AuctionSnapshot{
		Players:  g.playersInSeatingOrder(),
		LotsLeft: len(g.lots),
	}
	for _, id := range g.seating {
		if p := g.playerByID(id); p != nil {
			snap.BiddingOrder = append(snap.BiddingOrder, p.Name)
		}
	}

	lot := g.lot
	if lot == nil {
		return snap
	}
	snap.CurrentCreature = lot.creature
	snap.CurrentBid = lot.currentBid
	snap.TimeLeft = lot.remaining
	snap.IsPreviewMode = lot.preview
	if lot.highestBidder != uuid.Nil {
		if p := g.playerByID(lot.highestBidder); p != nil {
			snap.CurrentBidder = p.Name
		}
	}
	if !lot.preview && !lot.awaitingConfirm {
		if p := g.seatedPlayer(lot.turnSeat); p != nil {
			snap.CurrentBidderTurn = p.Name
		}
	}
	return snap
}

func (g *AuctionGame) playersInSeatingOrder() []*models.Player {
	if len(g.seating) == 0 {
		return append([]*models.Player(nil), g.Players...)
	}
	out := make([]*models.Player, 0, len(g.seating))
	for _, id := range g.seating {
		if p := g.playerByID(id); p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (g *AuctionGame) broadcastAuctionState() {
	g.fireEvent(GameEvent{Type: EventAuctionUpdate, Payload: g.auctionSnapshot()})
}
