package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

//go:generate mockgen -destination=mock_ledger_service_test.go -package=httpapi . LedgerService

// LedgerService: операции леджера, которые обслуживает HTTP-слой.
type LedgerService interface {
	CreateAuction(ctx context.Context, draft domain.AuctionDraft) (domain.Auction, error)
	CreateLot(ctx context.Context, draft domain.LotDraft) (domain.Lot, error)
	CreateBid(ctx context.Context, draft domain.BidDraft) (domain.Bid, error)
	RecommendStartingBid(ctx context.Context, draft domain.LotDraft) (decimal.Decimal, error)
	ListAuctions(ctx context.Context, offset, limit int) ([]domain.Auction, error)
	ListLots(ctx context.Context, auctionID int64, offset, limit int) ([]domain.Lot, error)
	ListBids(ctx context.Context, auctionID int64, lotNr int, offset, limit int) ([]domain.Bid, error)
}

// Handler обслуживает REST-эндпоинты аукционов, лотов и ставок.
type Handler struct {
	service LedgerService
	logger  *log.Entry
}

// NewHandler создаёт обработчик поверх сервиса леджера.
func NewHandler(service LedgerService, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Handler{service: service, logger: logger.WithField("component", "http-api")}
}

// CreateAuction handles POST /auctions
func (h *Handler) CreateAuction(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, h.logger, "CreateAuction", err)
		return
	}

	auction, err := h.service.CreateAuction(c.Request.Context(), req.draft())
	if err != nil {
		handleServiceError(c, h.logger, "CreateAuction", err, log.Fields{"company": req.RelatedCompany})
		return
	}

	jsonResponse(c, http.StatusCreated, newAuctionResponse(auction), "auction created")
}

// CreateLot handles POST /lots
func (h *Handler) CreateLot(c *gin.Context) {
	var req createLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, h.logger, "CreateLot", err)
		return
	}

	lot, err := h.service.CreateLot(c.Request.Context(), req.draft())
	if err != nil {
		handleServiceError(c, h.logger, "CreateLot", err, log.Fields{"auction_id": req.AuctionID})
		return
	}

	jsonResponse(c, http.StatusCreated, newLotResponse(lot), "lot created")
}

// CreateBid handles POST /bids
func (h *Handler) CreateBid(c *gin.Context) {
	var req createBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleBindError(c, h.logger, "CreateBid", err)
		return
	}

	bid, err := h.service.CreateBid(c.Request.Context(), req.draft())
	if err != nil {
		handleServiceError(c, h.logger, "CreateBid", err, log.Fields{
			"auction_id": req.AuctionID,
			"lot_nr":     req.LotNr,
		})
		return
	}

	jsonResponse(c, http.StatusCreated, newBidResponse(bid), "bid placed")
}

// RecommendStartingBid handles GET /lots/recommendation
func (h *Handler) RecommendStartingBid(c *gin.Context) {
	var q recommendationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handleBindError(c, h.logger, "RecommendStartingBid", err)
		return
	}
	draft, err := q.draft()
	if err != nil {
		handleBindError(c, h.logger, "RecommendStartingBid", err)
		return
	}

	bid, err := h.service.RecommendStartingBid(c.Request.Context(), draft)
	if err != nil {
		handleServiceError(c, h.logger, "RecommendStartingBid", err, log.Fields{"auction_id": q.AuctionID})
		return
	}

	jsonResponse(c, http.StatusOK, recommendationResponse{
		AuctionID:   q.AuctionID,
		StartingBid: bid.StringFixed(2),
	}, "starting bid recommended")
}

// ListAuctions handles GET /auctions
func (h *Handler) ListAuctions(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handleBindError(c, h.logger, "ListAuctions", err)
		return
	}

	auctions, err := h.service.ListAuctions(c.Request.Context(), q.Skip, q.Limit)
	if err != nil {
		handleServiceError(c, h.logger, "ListAuctions", err, nil)
		return
	}

	resp := make([]auctionResponse, 0, len(auctions))
	for _, a := range auctions {
		resp = append(resp, newAuctionResponse(a))
	}
	jsonResponse(c, http.StatusOK, resp, "auctions retrieved")
}

// ListLots handles GET /lots
func (h *Handler) ListLots(c *gin.Context) {
	var q lotsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handleBindError(c, h.logger, "ListLots", err)
		return
	}

	lots, err := h.service.ListLots(c.Request.Context(), q.AuctionID, q.Skip, q.Limit)
	if err != nil {
		handleServiceError(c, h.logger, "ListLots", err, log.Fields{"auction_id": q.AuctionID})
		return
	}

	resp := make([]lotResponse, 0, len(lots))
	for _, l := range lots {
		resp = append(resp, newLotResponse(l))
	}
	jsonResponse(c, http.StatusOK, resp, "lots retrieved")
}

// ListBids handles GET /bids
func (h *Handler) ListBids(c *gin.Context) {
	var q bidsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handleBindError(c, h.logger, "ListBids", err)
		return
	}

	bids, err := h.service.ListBids(c.Request.Context(), q.AuctionID, q.LotNr, q.Skip, q.Limit)
	if err != nil {
		handleServiceError(c, h.logger, "ListBids", err, log.Fields{
			"auction_id": q.AuctionID,
			"lot_nr":     q.LotNr,
		})
		return
	}

	resp := make([]bidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, newBidResponse(b))
	}
	jsonResponse(c, http.StatusOK, resp, "bids retrieved")
}
