package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
	"github.com/vladislavdragonenkov/auctionledger/internal/recommend"
)

// Параметры постраничного чтения.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 1000
)

// Имена операций для метрик и логов.
const (
	OpCreateAuction = "create_auction"
	OpCreateLot     = "create_lot"
	OpCreateBid     = "create_bid"
	OpRecommend     = "recommend_starting_bid"
)

// Результаты рекомендаций для метрик.
const (
	RecommendationOK       = "ok"
	RecommendationNoViable = "no_viable_bid"
	RecommendationError    = "error"
)

// Recommender рассчитывает стартовую ставку лота.
type Recommender interface {
	Recommend(ctx context.Context, features recommend.LotFeatures) (decimal.Decimal, error)
}

// Metrics: метрики операций леджера.
type Metrics interface {
	RecordAuctionCreated()
	RecordLotCreated()
	RecordBidCreated()
	RecordOverlapRejected()
	RecordSequenceConflict(scope string)
	RecordRetriesExhausted()
	RecordRecommendation(result string)
	RecordOperationDuration(operation string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordAuctionCreated()                         {}
func (noopMetrics) RecordLotCreated()                             {}
func (noopMetrics) RecordBidCreated()                             {}
func (noopMetrics) RecordOverlapRejected()                        {}
func (noopMetrics) RecordSequenceConflict(string)                 {}
func (noopMetrics) RecordRetriesExhausted()                       {}
func (noopMetrics) RecordRecommendation(string)                   {}
func (noopMetrics) RecordOperationDuration(string, time.Duration) {}

// Service: сервис леджера: создание аукционов, лотов и ставок и чтение.
type Service struct {
	store       domain.LedgerStore
	recommender Recommender
	metrics     Metrics
	logger      *log.Entry
	clock       func() time.Time
	retry       RetryPolicy
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics задаёт реализацию метрик.
func WithMetrics(metrics Metrics) Option {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithClock подменяет источник времени для BiddingDateTime.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRetryPolicy задаёт повторы при конфликте последовательности.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(s *Service) {
		s.retry = policy.normalized()
	}
}

// NewService создаёт сервис леджера.
func NewService(store domain.LedgerStore, recommender Recommender, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	if recommender == nil {
		return nil, errors.New("recommender is required")
	}

	s := &Service{
		store:       store,
		recommender: recommender,
		metrics:     noopMetrics{},
		logger:      log.NewEntry(log.StandardLogger()),
		clock:       func() time.Time { return time.Now().UTC() },
		retry:       DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.WithField("component", "ledger-service")
	return s, nil
}

// CreateAuction создаёт аукцион, если у компании нет пересекающихся аукционов.
func (s *Service) CreateAuction(ctx context.Context, draft domain.AuctionDraft) (domain.Auction, error) {
	if err := draft.Validate(); err != nil {
		return domain.Auction{}, err
	}

	var created domain.Auction
	err := s.runCreation(ctx, OpCreateAuction, ScopeCompany, func(ctx context.Context, tx domain.LedgerTx) error {
		prepared, err := PrepareAuction(ctx, tx, draft)
		if err != nil {
			return err
		}
		auction, err := tx.InsertAuction(ctx, prepared)
		if err != nil {
			return fmt.Errorf("insert auction: %w", err)
		}
		msg, err := auctionCreatedMessage(auction)
		if err != nil {
			return err
		}
		if _, err := tx.EnqueueOutbox(ctx, msg); err != nil {
			return fmt.Errorf("enqueue auction event: %w", err)
		}
		created = auction
		return nil
	})
	if err != nil {
		var overlap *domain.OverlapError
		if errors.As(err, &overlap) {
			s.metrics.RecordOverlapRejected()
			s.logger.WithFields(log.Fields{
				"company":             overlap.Company,
				"conflicting_auction": overlap.ConflictingAuctionID,
			}).Info("auction rejected: overlaps existing auction")
		}
		return domain.Auction{}, err
	}

	s.metrics.RecordAuctionCreated()
	s.logger.WithFields(log.Fields{
		"auction_id": created.ID,
		"company":    created.RelatedCompany,
	}).Info("auction created")
	return created, nil
}

// CreateLot создаёт лот: проверяет аукцион, рассчитывает стартовую ставку и назначает номер.
func (s *Service) CreateLot(ctx context.Context, draft domain.LotDraft) (domain.Lot, error) {
	if err := draft.Validate(); err != nil {
		return domain.Lot{}, err
	}

	var created domain.Lot
	err := s.runCreation(ctx, OpCreateLot, ScopeLots, func(ctx context.Context, tx domain.LedgerTx) error {
		auction, err := ValidateLotReference(ctx, tx, draft.AuctionID)
		if err != nil {
			return err
		}
		startingBid, err := s.recommend(ctx, lotFeatures(draft, auction))
		if err != nil {
			return err
		}
		lotNr, err := NextLotNumber(ctx, tx, draft.AuctionID)
		if err != nil {
			return err
		}

		lot := domain.NewLot(draft, lotNr, startingBid)
		if err := tx.InsertLot(ctx, lot); err != nil {
			return fmt.Errorf("insert lot: %w", err)
		}
		msg, err := lotCreatedMessage(lot)
		if err != nil {
			return err
		}
		if _, err := tx.EnqueueOutbox(ctx, msg); err != nil {
			return fmt.Errorf("enqueue lot event: %w", err)
		}
		created = lot
		return nil
	})
	if err != nil {
		return domain.Lot{}, err
	}

	s.metrics.RecordLotCreated()
	s.logger.WithFields(log.Fields{
		"auction_id":   created.AuctionID,
		"lot_nr":       created.LotNr,
		"starting_bid": created.StartingBid.String(),
	}).Info("lot created")
	return created, nil
}

// CreateBid создаёт ставку на существующий лот.
func (s *Service) CreateBid(ctx context.Context, draft domain.BidDraft) (domain.Bid, error) {
	if err := draft.Validate(); err != nil {
		return domain.Bid{}, err
	}

	var created domain.Bid
	err := s.runCreation(ctx, OpCreateBid, ScopeBids, func(ctx context.Context, tx domain.LedgerTx) error {
		if _, err := ValidateBidReference(ctx, tx, draft.AuctionID, draft.LotNr); err != nil {
			return err
		}
		closingAt, err := ResolveClosingTime(ctx, tx, draft.AuctionID)
		if err != nil {
			return err
		}
		bidNr, err := NextBidNumber(ctx, tx, draft.AuctionID, draft.LotNr)
		if err != nil {
			return err
		}

		bid := domain.NewBid(draft, bidNr, s.clock(), closingAt)
		if err := tx.InsertBid(ctx, bid); err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}
		msg, err := bidPlacedMessage(bid)
		if err != nil {
			return err
		}
		if _, err := tx.EnqueueOutbox(ctx, msg); err != nil {
			return fmt.Errorf("enqueue bid event: %w", err)
		}
		created = bid
		return nil
	})
	if err != nil {
		return domain.Bid{}, err
	}

	s.metrics.RecordBidCreated()
	s.logger.WithFields(log.Fields{
		"auction_id": created.AuctionID,
		"lot_nr":     created.LotNr,
		"bid_nr":     created.BidNr,
	}).Info("bid placed")
	return created, nil
}

// RecommendStartingBid рассчитывает стартовую ставку без создания лота.
func (s *Service) RecommendStartingBid(ctx context.Context, draft domain.LotDraft) (decimal.Decimal, error) {
	if err := draft.Validate(); err != nil {
		return decimal.Decimal{}, err
	}
	started := time.Now()
	defer func() { s.metrics.RecordOperationDuration(OpRecommend, time.Since(started)) }()

	auction, err := s.store.GetAuction(ctx, draft.AuctionID)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("auction %d: %w", draft.AuctionID, err)
	}
	return s.recommend(ctx, lotFeatures(draft, auction))
}

// ListAuctions возвращает страницу аукционов.
func (s *Service) ListAuctions(ctx context.Context, offset, limit int) ([]domain.Auction, error) {
	offset, limit = normalizePage(offset, limit)
	return s.store.ListAuctions(ctx, offset, limit)
}

// ListLots возвращает страницу лотов аукциона; отсутствующий аукцион даёт ErrAuctionNotFound.
func (s *Service) ListLots(ctx context.Context, auctionID int64, offset, limit int) ([]domain.Lot, error) {
	if _, err := s.store.GetAuction(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("auction %d: %w", auctionID, err)
	}
	offset, limit = normalizePage(offset, limit)
	return s.store.ListLots(ctx, auctionID, offset, limit)
}

// ListBids возвращает страницу ставок лота; отсутствующий лот даёт ErrLotNotFound.
func (s *Service) ListBids(ctx context.Context, auctionID int64, lotNr int, offset, limit int) ([]domain.Bid, error) {
	if _, err := s.store.GetLot(ctx, auctionID, lotNr); err != nil {
		return nil, fmt.Errorf("lot %d/%d: %w", auctionID, lotNr, err)
	}
	offset, limit = normalizePage(offset, limit)
	return s.store.ListBids(ctx, auctionID, lotNr, offset, limit)
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// runCreation выполняет fn в транзакции с повтором при конфликте.
func (s *Service) runCreation(ctx context.Context, operation, scope string, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	started := time.Now()
	defer func() { s.metrics.RecordOperationDuration(operation, time.Since(started)) }()

	onConflict := func(attempt int, err error) {
		s.metrics.RecordSequenceConflict(scope)
		s.logger.WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
		}).WithError(err).Debug("transaction conflict, retrying")
	}

	err := retryOnConflict(ctx, s.retry, onConflict, func() error {
		return s.store.WithinTx(ctx, fn)
	})
	if errors.Is(err, domain.ErrSequenceContention) {
		s.metrics.RecordRetriesExhausted()
		s.logger.WithField("operation", operation).WithError(err).Warn("sequence retries exhausted")
	}
	return err
}

func (s *Service) recommend(ctx context.Context, features recommend.LotFeatures) (decimal.Decimal, error) {
	bid, err := s.recommender.Recommend(ctx, features)
	switch {
	case err == nil:
		s.metrics.RecordRecommendation(RecommendationOK)
		return bid, nil
	case errors.Is(err, domain.ErrNoViableBid):
		s.metrics.RecordRecommendation(RecommendationNoViable)
		return decimal.Decimal{}, err
	default:
		s.metrics.RecordRecommendation(RecommendationError)
		return decimal.Decimal{}, fmt.Errorf("recommend starting bid: %w", err)
	}
}

func lotFeatures(draft domain.LotDraft, auction domain.Auction) recommend.LotFeatures {
	return recommend.LotFeatures{
		NumberOfItems:   draft.NumberOfItems,
		EstimatedValue:  draft.EstimatedValue,
		ReserveBid:      draft.ReserveBid,
		AuctionDuration: recommend.AuctionDurationHours(auction.AuctionStart, auction.AuctionEnd),
		Category:        draft.MainCategory,
	}
}

func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return offset, limit
}
