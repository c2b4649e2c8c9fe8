package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	return log.NewEntry(logger)
}

func newTestRouter(t *testing.T, opts ...RouterOption) (*gin.Engine, *MockLedgerService) {
	t.Helper()

	ctrl := gomock.NewController(t)
	mockService := NewMockLedgerService(ctrl)
	opts = append([]RouterOption{WithRouterLogger(quietLogger())}, opts...)
	return NewRouter(mockService, opts...), mockService
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	return w, resp
}

func TestCreateAuctionHandler(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(72 * time.Hour)

	tests := []struct {
		name           string
		body           any
		mockSetup      func(m *MockLedgerService)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name: "created",
			body: map[string]any{
				"relatedCompany": "Acme",
				"auctionStart":   start.Format(time.RFC3339),
				"auctionEnd":     end.Format(time.RFC3339),
				"branchCategory": "Vehicles",
			},
			mockSetup: func(m *MockLedgerService) {
				m.EXPECT().CreateAuction(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, d domain.AuctionDraft) (domain.Auction, error) {
						require.Equal(t, "Acme", d.RelatedCompany)
						require.True(t, d.AuctionStart.Equal(start))
						require.True(t, d.AuctionEnd.Equal(end))
						return domain.Auction{ID: 1, RelatedCompany: "Acme", AuctionStart: start, AuctionEnd: end, BranchCategory: "Vehicles"}, nil
					})
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "auction created",
		},
		{
			name:           "invalid_json",
			body:           `{invalid json}`,
			mockSetup:      func(*MockLedgerService) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "missing_company",
			body:           map[string]any{"auctionStart": start, "auctionEnd": end},
			mockSetup:      func(*MockLedgerService) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name: "overlap",
			body: map[string]any{"relatedCompany": "Acme", "auctionStart": start, "auctionEnd": end},
			mockSetup: func(m *MockLedgerService) {
				m.EXPECT().CreateAuction(gomock.Any(), gomock.Any()).
					Return(domain.Auction{}, &domain.OverlapError{Company: "Acme", ConflictingAuctionID: 3})
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "auction overlaps",
		},
		{
			name: "window_invalid",
			body: map[string]any{"relatedCompany": "Acme", "auctionStart": end, "auctionEnd": start},
			mockSetup: func(m *MockLedgerService) {
				m.EXPECT().CreateAuction(gomock.Any(), gomock.Any()).
					Return(domain.Auction{}, domain.ErrAuctionWindowInvalid)
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request details",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router, mockService := newTestRouter(t)
			tc.mockSetup(mockService)

			w, resp := doJSON(t, router, http.MethodPost, "/auctions", tc.body, nil)
			require.Equal(t, tc.expectedStatus, w.Code)
			require.Contains(t, resp["message"], tc.expectedMsg)

			if w.Code == http.StatusCreated {
				data := resp["data"].(map[string]any)
				require.Equal(t, float64(1), data["id"])
				require.Equal(t, "Acme", data["relatedCompany"])
				require.Equal(t, "2024-05-01T09:00:00Z", data["auctionStart"])
			}
		})
	}
}

func TestCreateLotHandler(t *testing.T) {
	lot := domain.NewLot(domain.LotDraft{
		AuctionID:      1,
		NumberOfItems:  5,
		EstimatedValue: decimal.NewFromInt(500),
		ReserveBid:     decimal.NewFromInt(150),
		MainCategory:   "Vehicles",
	}, 1, decimal.NewFromInt(120))

	tests := []struct {
		name           string
		body           string
		mockSetup      func(m *MockLedgerService)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name: "created",
			body: `{"auctionID":1,"numberOfItems":5,"estimatedValue":500,"reserveBid":"150","mainCategory":"Vehicles"}`,
			mockSetup: func(m *MockLedgerService) {
				m.EXPECT().CreateLot(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, d domain.LotDraft) (domain.Lot, error) {
						require.Equal(t, int64(1), d.AuctionID)
						require.True(t, d.EstimatedValue.Equal(decimal.NewFromInt(500)))
						require.True(t, d.ReserveBid.Equal(decimal.NewFromInt(150)))
						return lot, nil
					})
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "lot created",
		},
		{
			name:           "zero_items",
			body:           `{"auctionID":1,"numberOfItems":0,"estimatedValue":500,"reserveBid":150}`,
			mockSetup:      func(*MockLedgerService) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name: "unknown_auction",
			body: `{"auctionID":9,"numberOfItems":1,"estimatedValue":500,"reserveBid":150}`,
			mockSetup: func(m *MockLedgerService) {
				m.EXPECT().CreateLot(gomock.Any(), gomock.Any()).
					Return(domain.Lot{}, fmt.Errorf("auction 9: %w", domain.ErrAuctionNotFound))
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
		},
		{
			name: "no_viable_bid",
			body: `{"auctionID":1,"numberOfItems":1,"estimatedValue":500,"reserveBid":150}`,
			mockSetup: func(m *MockLedgerService) {
				m.EXPECT().CreateLot(gomock.Any(), gomock.Any()).
					Return(domain.Lot{}, domain.ErrNoViableBid)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedMsg:    "no viable starting bid",
		},
		{
			name: "contention",
			body: `{"auctionID":1,"numberOfItems":1,"estimatedValue":500,"reserveBid":150}`,
			mockSetup: func(m *MockLedgerService) {
				m.EXPECT().CreateLot(gomock.Any(), gomock.Any()).
					Return(domain.Lot{}, fmt.Errorf("%w after %d attempts: %w",
						domain.ErrSequenceContention, 5, domain.ErrConstraintViolation))
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "ledger is busy",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router, mockService := newTestRouter(t)
			tc.mockSetup(mockService)

			w, resp := doJSON(t, router, http.MethodPost, "/lots", tc.body, nil)
			require.Equal(t, tc.expectedStatus, w.Code)
			require.Contains(t, resp["message"], tc.expectedMsg)

			if w.Code == http.StatusCreated {
				data := resp["data"].(map[string]any)
				require.Equal(t, float64(1), data["lotNr"])
				require.Equal(t, "120.00", data["startingBid"])
				require.Equal(t, "99999.00", data["currentBid"])
				require.Equal(t, "NL", data["countryCode"])
				require.Equal(t, float64(21), data["VAT"])
			}
		})
	}
}

func TestCreateBidHandler(t *testing.T) {
	closing := time.Date(2024, 5, 4, 9, 0, 0, 0, time.UTC)

	t.Run("placed", func(t *testing.T) {
		router, mockService := newTestRouter(t)
		mockService.EXPECT().CreateBid(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, d domain.BidDraft) (domain.Bid, error) {
				require.Equal(t, 2, d.LotNr)
				require.True(t, d.IsCompany)
				require.True(t, d.BidPrice.Equal(decimal.RequireFromString("130.5")))
				return domain.NewBid(d, 4, closing.Add(-time.Hour), closing), nil
			})

		w, resp := doJSON(t, router, http.MethodPost, "/bids",
			`{"auctionID":1,"lotNr":2,"accountID":42,"isCompany":true,"bidPrice":130.5}`, nil)
		require.Equal(t, http.StatusCreated, w.Code)

		data := resp["data"].(map[string]any)
		require.Equal(t, float64(4), data["bidNr"])
		require.Equal(t, "130.50", data["bidPrice"])
		require.Equal(t, "2024-05-04T09:00:00Z", data["closingDateTime"])
	})

	t.Run("missing_account", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w, resp := doJSON(t, router, http.MethodPost, "/bids", `{"auctionID":1,"lotNr":2,"bidPrice":1}`, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Contains(t, resp["message"], "invalid request payload")
	})

	t.Run("unknown_lot", func(t *testing.T) {
		router, mockService := newTestRouter(t)
		mockService.EXPECT().CreateBid(gomock.Any(), gomock.Any()).Return(domain.Bid{}, domain.ErrLotNotFound)

		w, resp := doJSON(t, router, http.MethodPost, "/bids", `{"auctionID":1,"lotNr":7,"accountID":42,"bidPrice":1}`, nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		require.Equal(t, "lot not found", resp["message"])
	})

	t.Run("internal_error", func(t *testing.T) {
		router, mockService := newTestRouter(t)
		mockService.EXPECT().CreateBid(gomock.Any(), gomock.Any()).Return(domain.Bid{}, errors.New("disk full"))

		w, resp := doJSON(t, router, http.MethodPost, "/bids", `{"auctionID":1,"lotNr":1,"accountID":42,"bidPrice":1}`, nil)
		require.Equal(t, http.StatusInternalServerError, w.Code)
		require.Equal(t, "internal server error", resp["message"])
	})
}

func TestListHandlers(t *testing.T) {
	t.Run("auctions_default_page", func(t *testing.T) {
		router, mockService := newTestRouter(t)
		mockService.EXPECT().ListAuctions(gomock.Any(), 0, 0).Return([]domain.Auction{{ID: 1, RelatedCompany: "Acme"}}, nil)

		w, resp := doJSON(t, router, http.MethodGet, "/auctions", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, resp["data"], 1)
	})

	t.Run("auctions_paged", func(t *testing.T) {
		router, mockService := newTestRouter(t)
		mockService.EXPECT().ListAuctions(gomock.Any(), 20, 5).Return(nil, nil)

		w, resp := doJSON(t, router, http.MethodGet, "/auctions?skip=20&limit=5", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Empty(t, resp["data"])
	})

	t.Run("auctions_negative_skip", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w, _ := doJSON(t, router, http.MethodGet, "/auctions?skip=-1", nil, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("lots_require_auction", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w, _ := doJSON(t, router, http.MethodGet, "/lots", nil, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("lots_unknown_auction", func(t *testing.T) {
		router, mockService := newTestRouter(t)
		mockService.EXPECT().ListLots(gomock.Any(), int64(5), 0, 0).Return(nil, domain.ErrAuctionNotFound)

		w, _ := doJSON(t, router, http.MethodGet, "/lots?auctionID=5", nil, nil)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bids", func(t *testing.T) {
		router, mockService := newTestRouter(t)
		mockService.EXPECT().ListBids(gomock.Any(), int64(1), 2, 0, 3).
			Return([]domain.Bid{{AuctionID: 1, LotNr: 2, BidNr: 1, BidPrice: decimal.NewFromInt(10)}}, nil)

		w, resp := doJSON(t, router, http.MethodGet, "/bids?auctionID=1&lotNr=2&limit=3", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		items := resp["data"].([]any)
		require.Equal(t, "10.00", items[0].(map[string]any)["bidPrice"])
	})
}

func TestRecommendationHandler(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		router, mockService := newTestRouter(t)
		mockService.EXPECT().RecommendStartingBid(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, d domain.LotDraft) (decimal.Decimal, error) {
				require.Equal(t, int64(1), d.AuctionID)
				require.Equal(t, 5, d.NumberOfItems)
				require.True(t, d.EstimatedValue.Equal(decimal.RequireFromString("500.5")))
				require.Equal(t, "Vehicles", d.MainCategory)
				return decimal.NewFromInt(150), nil
			})

		w, resp := doJSON(t, router, http.MethodGet,
			"/lots/recommendation?auctionID=1&numberOfItems=5&estimatedValue=500.5&reserveBid=150&mainCategory=Vehicles", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "150.00", resp["data"].(map[string]any)["startingBid"])
	})

	t.Run("non_numeric_value", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w, _ := doJSON(t, router, http.MethodGet,
			"/lots/recommendation?auctionID=1&numberOfItems=5&estimatedValue=abc&reserveBid=150", nil, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("no_viable_bid", func(t *testing.T) {
		router, mockService := newTestRouter(t)
		mockService.EXPECT().RecommendStartingBid(gomock.Any(), gomock.Any()).Return(decimal.Decimal{}, domain.ErrNoViableBid)

		w, _ := doJSON(t, router, http.MethodGet,
			"/lots/recommendation?auctionID=1&numberOfItems=5&estimatedValue=500&reserveBid=150", nil, nil)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestRequestIDHeader(t *testing.T) {
	router, mockService := newTestRouter(t)
	mockService.EXPECT().ListAuctions(gomock.Any(), 0, 0).Return(nil, nil).Times(2)

	w, _ := doJSON(t, router, http.MethodGet, "/auctions", nil, nil)
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w, _ = doJSON(t, router, http.MethodGet, "/auctions", nil, map[string]string{RequestIDHeader: "req-1"})
	require.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
}

func TestExtraGetHandler(t *testing.T) {
	probe := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router, _ := newTestRouter(t, WithGetHandler("/healthz", probe))

	w, resp := doJSON(t, router, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", resp["status"])
}
