package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

type lotKey struct {
	auctionID int64
	lotNr     int
}

// LedgerStore: in-memory хранилище леджера.
//
// Транзакция держит блокировки областей до завершения, копит записи у себя и применяет их
// атомарно при коммите. Ошибка fn или отмена ctx отбрасывают накопленное целиком.
type LedgerStore struct {
	mu            sync.RWMutex
	nextAuctionID int64
	auctions      map[int64]domain.Auction
	lots          map[int64][]domain.Lot
	bids          map[lotKey][]domain.Bid

	scopes *scopeLocks
	outbox *OutboxRepository
}

// NewLedgerStore создаёт пустое хранилище. События outbox пишутся в outbox, nil создаёт новый.
func NewLedgerStore(outbox *OutboxRepository) *LedgerStore {
	if outbox == nil {
		outbox = NewOutboxRepository()
	}
	return &LedgerStore{
		auctions: make(map[int64]domain.Auction),
		lots:     make(map[int64][]domain.Lot),
		bids:     make(map[lotKey][]domain.Bid),
		scopes:   newScopeLocks(),
		outbox:   outbox,
	}
}

// Outbox возвращает outbox, в который коммитятся события.
func (s *LedgerStore) Outbox() *OutboxRepository {
	return s.outbox
}

// Ping всегда успешен, пока ctx не отменён.
func (s *LedgerStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// WithinTx выполняет fn в транзакции.
func (s *LedgerStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &ledgerTx{store: s, held: make(map[string]func())}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *LedgerStore) commit(tx *ledgerTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Сначала проверяем весь набор, затем применяем: частичный коммит невозможен.
	stagedAuctions := make(map[int64]struct{}, len(tx.auctions))
	for _, a := range tx.auctions {
		if _, exists := s.auctions[a.ID]; exists {
			return fmt.Errorf("%w: auction %d already exists", domain.ErrConstraintViolation, a.ID)
		}
		stagedAuctions[a.ID] = struct{}{}
	}
	stagedLots := make(map[lotKey]struct{}, len(tx.lots))
	for _, l := range tx.lots {
		key := lotKey{l.AuctionID, l.LotNr}
		if _, ok := s.auctions[l.AuctionID]; !ok {
			if _, staged := stagedAuctions[l.AuctionID]; !staged {
				return fmt.Errorf("%w: lot references missing auction %d", domain.ErrConstraintViolation, l.AuctionID)
			}
		}
		if s.hasLotLocked(key) {
			return fmt.Errorf("%w: lot %d/%d already exists", domain.ErrConstraintViolation, l.AuctionID, l.LotNr)
		}
		if _, dup := stagedLots[key]; dup {
			return fmt.Errorf("%w: lot %d/%d staged twice", domain.ErrConstraintViolation, l.AuctionID, l.LotNr)
		}
		stagedLots[key] = struct{}{}
	}
	type bidKey struct {
		lot   lotKey
		bidNr int
	}
	stagedBids := make(map[bidKey]struct{}, len(tx.bids))
	for _, b := range tx.bids {
		key := lotKey{b.AuctionID, b.LotNr}
		if !s.hasLotLocked(key) {
			if _, staged := stagedLots[key]; !staged {
				return fmt.Errorf("%w: bid references missing lot %d/%d", domain.ErrConstraintViolation, b.AuctionID, b.LotNr)
			}
		}
		if s.hasBidLocked(key, b.BidNr) {
			return fmt.Errorf("%w: bid %d/%d/%d already exists", domain.ErrConstraintViolation, b.AuctionID, b.LotNr, b.BidNr)
		}
		bk := bidKey{key, b.BidNr}
		if _, dup := stagedBids[bk]; dup {
			return fmt.Errorf("%w: bid %d/%d/%d staged twice", domain.ErrConstraintViolation, b.AuctionID, b.LotNr, b.BidNr)
		}
		stagedBids[bk] = struct{}{}
	}

	for _, a := range tx.auctions {
		s.auctions[a.ID] = a
	}
	for _, l := range tx.lots {
		s.lots[l.AuctionID] = insertLotSorted(s.lots[l.AuctionID], l)
	}
	for _, b := range tx.bids {
		key := lotKey{b.AuctionID, b.LotNr}
		s.bids[key] = insertBidSorted(s.bids[key], b)
	}

	if len(tx.outbox) > 0 {
		now := time.Now().UTC()
		s.outbox.mu.Lock()
		for _, msg := range tx.outbox {
			s.outbox.enqueueLocked(msg, now)
		}
		s.outbox.mu.Unlock()
	}
	return nil
}

func (s *LedgerStore) hasLotLocked(key lotKey) bool {
	for _, l := range s.lots[key.auctionID] {
		if l.LotNr == key.lotNr {
			return true
		}
	}
	return false
}

func (s *LedgerStore) hasBidLocked(key lotKey, bidNr int) bool {
	for _, b := range s.bids[key] {
		if b.BidNr == bidNr {
			return true
		}
	}
	return false
}

func insertLotSorted(lots []domain.Lot, lot domain.Lot) []domain.Lot {
	i := sort.Search(len(lots), func(i int) bool { return lots[i].LotNr > lot.LotNr })
	lots = append(lots, domain.Lot{})
	copy(lots[i+1:], lots[i:])
	lots[i] = lot
	return lots
}

func insertBidSorted(bids []domain.Bid, bid domain.Bid) []domain.Bid {
	i := sort.Search(len(bids), func(i int) bool { return bids[i].BidNr > bid.BidNr })
	bids = append(bids, domain.Bid{})
	copy(bids[i+1:], bids[i:])
	bids[i] = bid
	return bids
}

// GetAuction возвращает аукцион по идентификатору.
func (s *LedgerStore) GetAuction(ctx context.Context, id int64) (domain.Auction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Auction{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[id]
	if !ok {
		return domain.Auction{}, domain.ErrAuctionNotFound
	}
	return a, nil
}

// GetLot возвращает лот по составному ключу.
func (s *LedgerStore) GetLot(ctx context.Context, auctionID int64, lotNr int) (domain.Lot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Lot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.lots[auctionID] {
		if l.LotNr == lotNr {
			return l, nil
		}
	}
	return domain.Lot{}, domain.ErrLotNotFound
}

// ListAuctions возвращает аукционы по возрастанию идентификатора.
func (s *LedgerStore) ListAuctions(ctx context.Context, offset, limit int) ([]domain.Auction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.auctions))
	for id := range s.auctions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	lo, hi := pageBounds(len(ids), offset, limit)
	result := make([]domain.Auction, 0, hi-lo)
	for _, id := range ids[lo:hi] {
		result = append(result, s.auctions[id])
	}
	return result, nil
}

// ListLots возвращает лоты аукциона по возрастанию номера.
func (s *LedgerStore) ListLots(ctx context.Context, auctionID int64, offset, limit int) ([]domain.Lot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	lots := s.lots[auctionID]
	lo, hi := pageBounds(len(lots), offset, limit)
	return append([]domain.Lot(nil), lots[lo:hi]...), nil
}

// ListBids возвращает ставки лота по возрастанию номера.
func (s *LedgerStore) ListBids(ctx context.Context, auctionID int64, lotNr int, offset, limit int) ([]domain.Bid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	bids := s.bids[lotKey{auctionID, lotNr}]
	lo, hi := pageBounds(len(bids), offset, limit)
	return append([]domain.Bid(nil), bids[lo:hi]...), nil
}

func pageBounds(total, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return offset, end
}

// ledgerTx видит закоммиченные данные и собственные незакоммиченные записи.
type ledgerTx struct {
	store *LedgerStore
	held  map[string]func()

	auctions []domain.Auction
	lots     []domain.Lot
	bids     []domain.Bid
	outbox   []domain.OutboxMessage
}

func (tx *ledgerTx) release() {
	for scope, release := range tx.held {
		release()
		delete(tx.held, scope)
	}
}

func (tx *ledgerTx) LockScope(ctx context.Context, scope string) error {
	if _, ok := tx.held[scope]; ok {
		return nil
	}
	release, err := tx.store.scopes.acquire(ctx, scope)
	if err != nil {
		return err
	}
	tx.held[scope] = release
	return nil
}

func (tx *ledgerTx) InsertAuction(ctx context.Context, draft domain.AuctionDraft) (domain.Auction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Auction{}, err
	}
	tx.store.mu.Lock()
	tx.store.nextAuctionID++
	id := tx.store.nextAuctionID
	tx.store.mu.Unlock()

	auction := domain.Auction{
		ID:             id,
		RelatedCompany: draft.RelatedCompany,
		AuctionStart:   draft.AuctionStart,
		AuctionEnd:     draft.AuctionEnd,
		BranchCategory: draft.BranchCategory,
	}
	tx.auctions = append(tx.auctions, auction)
	return auction, nil
}

func (tx *ledgerTx) InsertLot(ctx context.Context, lot domain.Lot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := tx.GetAuctionByID(ctx, lot.AuctionID); err != nil {
		return fmt.Errorf("%w: lot references missing auction %d", domain.ErrConstraintViolation, lot.AuctionID)
	}
	if _, err := tx.GetLotByKey(ctx, lot.AuctionID, lot.LotNr); err == nil {
		return fmt.Errorf("%w: lot %d/%d already exists", domain.ErrConstraintViolation, lot.AuctionID, lot.LotNr)
	}
	tx.lots = append(tx.lots, lot)
	return nil
}

func (tx *ledgerTx) InsertBid(ctx context.Context, bid domain.Bid) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := tx.GetLotByKey(ctx, bid.AuctionID, bid.LotNr); err != nil {
		return fmt.Errorf("%w: bid references missing lot %d/%d", domain.ErrConstraintViolation, bid.AuctionID, bid.LotNr)
	}
	if tx.hasBid(bid.AuctionID, bid.LotNr, bid.BidNr) {
		return fmt.Errorf("%w: bid %d/%d/%d already exists", domain.ErrConstraintViolation, bid.AuctionID, bid.LotNr, bid.BidNr)
	}
	tx.bids = append(tx.bids, bid)
	return nil
}

func (tx *ledgerTx) hasBid(auctionID int64, lotNr, bidNr int) bool {
	for _, b := range tx.bids {
		if b.AuctionID == auctionID && b.LotNr == lotNr && b.BidNr == bidNr {
			return true
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.hasBidLocked(lotKey{auctionID, lotNr}, bidNr)
}

func (tx *ledgerTx) QueryAuctionsByCompany(ctx context.Context, company string) ([]domain.Auction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result []domain.Auction
	tx.store.mu.RLock()
	for _, a := range tx.store.auctions {
		if a.RelatedCompany == company {
			result = append(result, a)
		}
	}
	tx.store.mu.RUnlock()
	for _, a := range tx.auctions {
		if a.RelatedCompany == company {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (tx *ledgerTx) MaxLotNrForAuction(ctx context.Context, auctionID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	maxNr := 0
	tx.store.mu.RLock()
	if lots := tx.store.lots[auctionID]; len(lots) > 0 {
		maxNr = lots[len(lots)-1].LotNr
	}
	tx.store.mu.RUnlock()
	for _, l := range tx.lots {
		if l.AuctionID == auctionID && l.LotNr > maxNr {
			maxNr = l.LotNr
		}
	}
	return maxNr, nil
}

func (tx *ledgerTx) MaxBidNrForLot(ctx context.Context, auctionID int64, lotNr int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	maxNr := 0
	tx.store.mu.RLock()
	if bids := tx.store.bids[lotKey{auctionID, lotNr}]; len(bids) > 0 {
		maxNr = bids[len(bids)-1].BidNr
	}
	tx.store.mu.RUnlock()
	for _, b := range tx.bids {
		if b.AuctionID == auctionID && b.LotNr == lotNr && b.BidNr > maxNr {
			maxNr = b.BidNr
		}
	}
	return maxNr, nil
}

func (tx *ledgerTx) GetAuctionByID(ctx context.Context, id int64) (domain.Auction, error) {
	for _, a := range tx.auctions {
		if a.ID == id {
			return a, nil
		}
	}
	return tx.store.GetAuction(ctx, id)
}

func (tx *ledgerTx) GetLotByKey(ctx context.Context, auctionID int64, lotNr int) (domain.Lot, error) {
	for _, l := range tx.lots {
		if l.AuctionID == auctionID && l.LotNr == lotNr {
			return l, nil
		}
	}
	return tx.store.GetLot(ctx, auctionID, lotNr)
}

func (tx *ledgerTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxMessage{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	tx.outbox = append(tx.outbox, msg)
	return msg, nil
}

var (
	_ domain.LedgerStore = (*LedgerStore)(nil)
	_ domain.LedgerTx    = (*ledgerTx)(nil)
)
