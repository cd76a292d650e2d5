package engine

import (
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/clobcore/internal/domain"
	"github.com/alanyoungcy/clobcore/internal/ledger"
)

// Verifier computes an order's EIP-712 digest and validates its signature.
// Implemented by crypto.Verifier.
type Verifier interface {
	HashOrder(o domain.Order) ([]byte, error)
	VerifyOrder(o domain.Order) error
}

// TradeFunc receives every executed trade. Callbacks run after the market
// lock is released, in execution order.
type TradeFunc func(domain.Trade)

// DepthFunc receives a depth snapshot after every book mutation.
type DepthFunc func(domain.BookDepth)

// Config carries engine tuning knobs.
type Config struct {
	// FeeRecipient is the ledger account collected fees are credited to.
	FeeRecipient string
	// DepthLevels caps the number of aggregated price levels per side in
	// published depth snapshots.
	DepthLevels int
	// StrictUnlock surfaces unlock failures during cancellation to the
	// caller instead of logging and swallowing them. The cancelled order
	// is removed from the book either way.
	StrictUnlock bool
}

// Result reports the outcome of order submission.
type Result struct {
	OrderID   string
	Status    domain.OrderStatus
	Trades    []domain.Trade
	Remaining int64
}

// marketBook is one market's book plus the mutex that serializes every
// mutation to it. Independent markets proceed in parallel.
type marketBook struct {
	mu   sync.Mutex
	book book
}

// Engine maintains the per-market order books and issues every ledger
// mutation for fills, cancels, and expiry evictions. It is an explicit,
// constructible value: tests and hosts may run any number of isolated
// instances.
type Engine struct {
	verifier Verifier
	ledger   *ledger.Ledger
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time

	mu         sync.Mutex
	books      map[string]*marketBook
	orderIndex map[string]string // order ID -> market key
	// seen holds the digest-derived ID of every order ever accepted.
	// Digests stay reserved after fill or cancel, so a signed order can
	// never execute twice — in any market, since the digest excludes the
	// market ID.
	seen map[string]struct{}

	tradeFns []TradeFunc
	depthFns []DepthFunc
}

// New creates an Engine backed by the given ledger and signature verifier.
func New(v Verifier, l *ledger.Ledger, logger *slog.Logger, cfg Config) *Engine {
	if cfg.DepthLevels <= 0 {
		cfg.DepthLevels = 50
	}
	if cfg.FeeRecipient == "" {
		cfg.FeeRecipient = "fee-pool"
	}
	return &Engine{
		verifier:   v,
		ledger:     l,
		logger:     logger.With(slog.String("component", "engine")),
		cfg:        cfg,
		now:        time.Now,
		books:      make(map[string]*marketBook),
		orderIndex: make(map[string]string),
		seen:       make(map[string]struct{}),
	}
}

// OnTrade registers a callback invoked for every executed trade.
func (e *Engine) OnTrade(fn TradeFunc) {
	e.tradeFns = append(e.tradeFns, fn)
}

// OnDepth registers a callback invoked with a fresh depth snapshot after
// every book mutation.
func (e *Engine) OnDepth(fn DepthFunc) {
	e.depthFns = append(e.depthFns, fn)
}

func marketKey(marketID, tokenID string) string {
	return marketID + "-" + tokenID
}

func (e *Engine) market(key string) *marketBook {
	e.mu.Lock()
	defer e.mu.Unlock()
	mb, ok := e.books[key]
	if !ok {
		mb = &marketBook{}
		e.books[key] = mb
	}
	return mb
}

// AddOrder validates, locks funds for, and matches an incoming signed
// order. Validation and lock failures are reported before any book
// mutation; matching side effects are per-fill atomic. If the order is not
// fully filled the residual rests in the book at its price-time position.
func (e *Engine) AddOrder(o domain.Order) (Result, error) {
	if o.MarketID == "" || o.TokenID == "" || o.Maker == "" {
		return Result{}, domain.Errf(domain.CodeValidation, "order missing market, token, or maker")
	}
	if o.MakerAmount <= 0 || o.TakerAmount <= 0 {
		return Result{}, domain.Errf(domain.CodeValidation, "order amounts must be positive")
	}
	if o.FeeRateBps < 0 || o.FeeRateBps > maxFeeRateBps {
		return Result{}, domain.Errf(domain.CodeValidation,
			"fee rate %d bps outside [0, %d]", o.FeeRateBps, maxFeeRateBps)
	}

	now := e.now()
	if o.Expired(now) {
		return Result{}, domain.Errf(domain.CodeOrderExpired,
			"order expired at %d", o.Expiration)
	}
	if err := e.verifier.VerifyOrder(o); err != nil {
		return Result{}, err
	}
	if current := e.ledger.Nonce(o.Maker); o.Nonce != current {
		return Result{}, domain.Errf(domain.CodeInvalidNonce,
			"order nonce %d, maker nonce %d", o.Nonce, current)
	}

	// The order's identity is its EIP-712 digest. A digest already accepted
	// once is a replay of the same signed order and is rejected outright.
	digest, err := e.verifier.HashOrder(o)
	if err != nil {
		return Result{}, domain.Errf(domain.CodeValidation, "order hash: %v", err)
	}
	o.ID = "0x" + hex.EncodeToString(digest)
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}

	limit := o.Price()
	size := o.Size()
	if limit <= 0 || limit > domain.PriceUnit {
		return Result{}, domain.Errf(domain.CodeValidation,
			"order price %d outside (0, %d]", limit, domain.PriceUnit)
	}

	e.mu.Lock()
	if _, dup := e.seen[o.ID]; dup {
		e.mu.Unlock()
		return Result{}, domain.Errf(domain.CodeValidation, "order %s already submitted", o.ID)
	}
	e.seen[o.ID] = struct{}{}
	e.mu.Unlock()

	// Lock the side-appropriate funds up front: a BUY locks collateral at
	// its limit price, a SELL locks the outcome tokens. Everything after
	// this point spends out of the locked bucket.
	lockAsset := domain.CollateralAssetID
	lockAmount := domain.MulDiv(limit, size, domain.PriceUnit)
	if o.Side == domain.OrderSideSell {
		lockAsset = o.TokenID
		lockAmount = size
	}
	if err := e.ledger.Lock(o.Maker, lockAsset, lockAmount); err != nil {
		// An order that never locked funds may be resubmitted once funded.
		e.mu.Lock()
		delete(e.seen, o.ID)
		e.mu.Unlock()
		return Result{}, err
	}

	mb := e.market(marketKey(o.MarketID, o.TokenID))
	mb.mu.Lock()

	trades, remaining, lockLeft := e.matchLoop(mb, o, limit, size, lockAmount, now)

	status := domain.OrderStatusFilled
	if remaining > 0 {
		entry := &Entry{
			Order:           o,
			Price:           limit,
			Remaining:       remaining,
			LockedRemaining: lockLeft,
			Timestamp:       now,
		}
		mb.book.insert(entry)
		status = domain.OrderStatusOpen

		e.mu.Lock()
		e.orderIndex[o.ID] = marketKey(o.MarketID, o.TokenID)
		e.mu.Unlock()
	} else if lockLeft > 0 {
		// Fully filled: release the price-improvement difference and any
		// fixed-point truncation dust still locked.
		if err := e.ledger.Unlock(o.Maker, lockAsset, lockLeft); err != nil {
			e.logger.Error("refund unlock failed",
				slog.String("order_id", o.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	depth := e.snapshotLocked(mb, o.MarketID, o.TokenID)
	mb.mu.Unlock()

	e.emit(trades, depth)

	return Result{OrderID: o.ID, Status: status, Trades: trades, Remaining: remaining}, nil
}

// matchLoop walks the opposite queue from best price outward, committing
// one fill per crossing resting order. It returns the executed trades, the
// taker's unfilled remainder, and the portion of the taker's lock not yet
// consumed. Must be called with mb.mu held.
func (e *Engine) matchLoop(mb *marketBook, o domain.Order, limit, size, lockAmount int64, now time.Time) ([]domain.Trade, int64, int64) {
	var trades []domain.Trade
	remaining := size
	lockLeft := lockAmount
	idx := 0

	for remaining > 0 {
		queue := mb.book.opposite(o.Side)
		if idx >= len(queue) {
			break
		}
		rest := queue[idx]

		// Resting orders are not swept on expiry; re-check before
		// committing a fill and lazily evict. Eviction splices the queue,
		// so idx already points at the next entry.
		if rest.Order.Expired(now) {
			e.evictLocked(mb, rest)
			continue
		}

		// The book is price-ordered, so the first non-crossing entry ends
		// the walk.
		if o.Side == domain.OrderSideBuy && rest.Price > limit {
			break
		}
		if o.Side == domain.OrderSideSell && rest.Price < limit {
			break
		}

		// Orders with a named taker only fill their counterparty; everyone
		// else walks past them.
		if !takerAllowed(o, rest.Order) {
			idx++
			continue
		}

		fill := remaining
		if rest.Remaining < fill {
			fill = rest.Remaining
		}

		// Execution is always at the resting (maker) order's price: the
		// incoming order is the taker and gets the price improvement.
		price := rest.Price
		cost := domain.MulDiv(price, fill, domain.PriceUnit)
		fee := Fee(o.FeeRateBps, price, fill)

		if o.Side == domain.OrderSideBuy {
			e.settleFill(o.Maker, rest.Order.Maker, o.TokenID, fill, cost, fee)
			// The taker locked this slice at their own (worse) limit price;
			// refund the difference to the match price right away.
			slice := domain.MulDiv(limit, fill, domain.PriceUnit)
			if refund := slice - cost; refund > 0 {
				if err := e.ledger.Unlock(o.Maker, domain.CollateralAssetID, refund); err != nil {
					e.logger.Error("price-improvement refund failed",
						slog.String("order_id", o.ID),
						slog.String("error", err.Error()),
					)
				}
			}
			lockLeft -= slice
			rest.LockedRemaining -= fill
		} else {
			e.settleFill(rest.Order.Maker, o.Maker, o.TokenID, fill, cost, fee)
			lockLeft -= fill
			rest.LockedRemaining -= cost
		}

		trades = append(trades, domain.Trade{
			ID:           uuid.NewString(),
			MarketID:     o.MarketID,
			TokenID:      o.TokenID,
			Maker:        rest.Order.Maker,
			Taker:        o.Maker,
			MakerOrderID: rest.Order.ID,
			TakerOrderID: o.ID,
			TakerSide:    o.Side,
			Amount:       fill,
			Price:        price,
			MatchType:    DetectMatchType(o, rest.Order),
			Fee:          fee,
			Timestamp:    now,
		})

		remaining -= fill
		rest.Remaining -= fill
		if rest.Remaining == 0 {
			e.retire(mb, rest)
		}
	}

	return trades, remaining, lockLeft
}

// settleFill applies one fill's ledger flow. buyer pays cost collateral
// out of their lock (fee split off to the fee pool), seller delivers fill
// outcome tokens out of theirs. The trade fee is always the taker's; the
// caller passes it in. With the fee rate capped at 100%, cost-fee is never
// negative; a zero net (dust fill) moves nothing.
func (e *Engine) settleFill(buyer, seller, tokenID string, fill, cost, fee int64) {
	if net := cost - fee; net > 0 {
		if err := e.ledger.Transfer(buyer, seller, domain.CollateralAssetID, net, true); err != nil {
			e.logger.Error("fill collateral transfer failed", slog.String("error", err.Error()))
		}
	}
	if fee > 0 {
		if err := e.ledger.Transfer(buyer, e.cfg.FeeRecipient, domain.CollateralAssetID, fee, true); err != nil {
			e.logger.Error("fill fee transfer failed", slog.String("error", err.Error()))
		}
	}
	if err := e.ledger.Transfer(seller, buyer, tokenID, fill, true); err != nil {
		e.logger.Error("fill token transfer failed", slog.String("error", err.Error()))
	}
}

// retire removes a fully-filled resting entry, unlocking any fixed-point
// dust left in its ledger lock. Must be called with mb.mu held.
func (e *Engine) retire(mb *marketBook, rest *Entry) {
	mb.book.remove(rest.Order.ID)
	e.dropIndex(rest.Order.ID)
	if rest.LockedRemaining > 0 {
		if err := e.ledger.Unlock(rest.Order.Maker, rest.lockAsset(), rest.LockedRemaining); err != nil {
			e.logger.Error("dust unlock failed",
				slog.String("order_id", rest.Order.ID),
				slog.String("error", err.Error()),
			)
		}
		rest.LockedRemaining = 0
	}
}

// evictLocked removes an expired resting entry and returns its lock.
// Must be called with mb.mu held.
func (e *Engine) evictLocked(mb *marketBook, rest *Entry) {
	mb.book.remove(rest.Order.ID)
	e.dropIndex(rest.Order.ID)
	if rest.LockedRemaining > 0 {
		if err := e.ledger.Unlock(rest.Order.Maker, rest.lockAsset(), rest.LockedRemaining); err != nil {
			e.logger.Error("expiry unlock failed",
				slog.String("order_id", rest.Order.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	e.logger.Debug("evicted expired resting order", slog.String("order_id", rest.Order.ID))
}

func (e *Engine) dropIndex(orderID string) {
	e.mu.Lock()
	delete(e.orderIndex, orderID)
	e.mu.Unlock()
}

// CancelOrder removes a resting order. Only the original maker may cancel;
// any other requester, or an order that no longer rests (including a
// double-cancel), yields false. The entry's exact remaining lock is
// released; an unlock failure never blocks removal unless StrictUnlock is
// set, in which case the error is surfaced after the order is removed.
func (e *Engine) CancelOrder(orderID, requester string) (bool, error) {
	e.mu.Lock()
	key, ok := e.orderIndex[orderID]
	e.mu.Unlock()
	if !ok {
		return false, nil
	}

	mb := e.market(key)
	mb.mu.Lock()

	// Peek before removing: a rejected request must leave the entry's
	// time priority untouched.
	entry, ok := mb.book.find(orderID)
	if !ok || !sameAddress(entry.Order.Maker, requester) {
		mb.mu.Unlock()
		return false, nil
	}
	mb.book.remove(orderID)
	e.dropIndex(orderID)

	var unlockErr error
	if entry.LockedRemaining > 0 {
		unlockErr = e.ledger.Unlock(entry.Order.Maker, entry.lockAsset(), entry.LockedRemaining)
	}
	depth := e.snapshotLocked(mb, entry.Order.MarketID, entry.Order.TokenID)
	mb.mu.Unlock()

	if unlockErr != nil {
		e.logger.Error("cancel unlock failed",
			slog.String("order_id", orderID),
			slog.String("error", unlockErr.Error()),
		)
		if e.cfg.StrictUnlock {
			return true, unlockErr
		}
	}

	e.emit(nil, depth)
	return true, nil
}

// CancelAll bumps the maker's ledger nonce, invalidating every order
// signed against the old value, and sweeps the maker's resting orders
// from all books. It returns the new nonce and the number of orders
// removed.
func (e *Engine) CancelAll(maker string) (int64, int) {
	nonce := e.ledger.IncrementNonce(maker)

	e.mu.Lock()
	mine := make(map[string]string, 4)
	for id, key := range e.orderIndex {
		mine[id] = key
	}
	e.mu.Unlock()

	removed := 0
	for id, key := range mine {
		mb := e.market(key)
		mb.mu.Lock()
		entry, ok := mb.book.find(id)
		if ok && sameAddress(entry.Order.Maker, maker) {
			mb.book.remove(id)
			e.dropIndex(id)
			if entry.LockedRemaining > 0 {
				if err := e.ledger.Unlock(entry.Order.Maker, entry.lockAsset(), entry.LockedRemaining); err != nil {
					e.logger.Error("mass-cancel unlock failed",
						slog.String("order_id", id),
						slog.String("error", err.Error()),
					)
				}
			}
			removed++
		}
		mb.mu.Unlock()
	}

	return nonce, removed
}

// Book returns a depth-limited snapshot of one market's book.
func (e *Engine) Book(marketID, tokenID string, levels int) domain.BookDepth {
	if levels <= 0 || levels > e.cfg.DepthLevels {
		levels = e.cfg.DepthLevels
	}
	mb := e.market(marketKey(marketID, tokenID))
	mb.mu.Lock()
	defer mb.mu.Unlock()

	bids, asks := mb.book.depth(levels)
	return domain.BookDepth{
		MarketID:  marketID,
		TokenID:   tokenID,
		Bids:      bids,
		Asks:      asks,
		Timestamp: e.now(),
	}
}

// snapshotLocked builds a depth snapshot with mb.mu already held.
func (e *Engine) snapshotLocked(mb *marketBook, marketID, tokenID string) domain.BookDepth {
	bids, asks := mb.book.depth(e.cfg.DepthLevels)
	return domain.BookDepth{
		MarketID:  marketID,
		TokenID:   tokenID,
		Bids:      bids,
		Asks:      asks,
		Timestamp: e.now(),
	}
}

// emit fans executed trades and the latest depth snapshot out to the
// registered sinks, outside any book lock.
func (e *Engine) emit(trades []domain.Trade, depth domain.BookDepth) {
	for _, t := range trades {
		for _, fn := range e.tradeFns {
			fn(t)
		}
	}
	for _, fn := range e.depthFns {
		fn(depth)
	}
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

// takerAllowed reports whether two orders may fill each other given their
// taker restrictions: a non-zero taker names the only counterparty that
// order fills against.
func takerAllowed(incoming, resting domain.Order) bool {
	if !anyTaker(resting.Taker) && !sameAddress(resting.Taker, incoming.Maker) {
		return false
	}
	if !anyTaker(incoming.Taker) && !sameAddress(incoming.Taker, resting.Maker) {
		return false
	}
	return true
}

// anyTaker reports whether a taker field is the zero value (empty or the
// zero address), meaning anyone may fill.
func anyTaker(addr string) bool {
	for _, c := range strings.TrimPrefix(strings.ToLower(addr), "0x") {
		if c != '0' {
			return false
		}
	}
	return true
}
