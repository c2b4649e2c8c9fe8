package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const idempotencyHeader = "Idempotency-Key"

// statusTransport: запрос не дошёл до сервера или ответ не прочитан.
const statusTransport = 0

// ledgerClient: вызовы API, которые нужны нагрузочному тесту. Второе значение: HTTP-статус.
type ledgerClient interface {
	CreateAuction(ctx context.Context, body auctionRequest, key string) (int64, int, error)
	CreateLot(ctx context.Context, body lotRequest, key string) (int, int, error)
	CreateBid(ctx context.Context, body bidRequest, key string) (int, int, error)
}

type auctionRequest struct {
	RelatedCompany string    `json:"relatedCompany"`
	AuctionStart   time.Time `json:"auctionStart"`
	AuctionEnd     time.Time `json:"auctionEnd"`
	BranchCategory string    `json:"branchCategory"`
}

type lotRequest struct {
	AuctionID      int64  `json:"auctionID"`
	NumberOfItems  int    `json:"numberOfItems"`
	EstimatedValue string `json:"estimatedValue"`
	ReserveBid     string `json:"reserveBid"`
	MainCategory   string `json:"mainCategory"`
}

type bidRequest struct {
	AuctionID int64  `json:"auctionID"`
	LotNr     int    `json:"lotNr"`
	AccountID int64  `json:"accountID"`
	IsCompany bool   `json:"isCompany"`
	BidPrice  string `json:"bidPrice"`
}

// apiError: ответ API со статусом, отличным от 201.
type apiError struct {
	Path    string
	Status  int
	Message string
	Detail  string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("POST %s: %d %s: %s", e.Path, e.Status, e.Message, e.Detail)
}

// httpClient ходит в REST API леджера и разбирает конверт {message, error, data}.
type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string, client *http.Client) *httpClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpClient{baseURL: baseURL, client: client}
}

func (c *httpClient) CreateAuction(ctx context.Context, body auctionRequest, key string) (int64, int, error) {
	var created struct {
		ID int64 `json:"id"`
	}
	status, err := c.create(ctx, "/auctions", body, key, &created)
	return created.ID, status, err
}

func (c *httpClient) CreateLot(ctx context.Context, body lotRequest, key string) (int, int, error) {
	var created struct {
		LotNr int `json:"lotNr"`
	}
	status, err := c.create(ctx, "/lots", body, key, &created)
	return created.LotNr, status, err
}

func (c *httpClient) CreateBid(ctx context.Context, body bidRequest, key string) (int, int, error) {
	var created struct {
		BidNr int `json:"bidNr"`
	}
	status, err := c.create(ctx, "/bids", body, key, &created)
	return created.BidNr, status, err
}

func (c *httpClient) create(ctx context.Context, path string, body any, key string, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return statusTransport, fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return statusTransport, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return statusTransport, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return statusTransport, fmt.Errorf("read %s response: %w", path, err)
	}
	var envelope struct {
		Message string          `json:"message"`
		Error   string          `json:"error"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusCreated {
		return resp.StatusCode, &apiError{Path: path, Status: resp.StatusCode, Message: envelope.Message, Detail: envelope.Error}
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s data: %w", path, err)
	}
	return resp.StatusCode, nil
}

var _ ledgerClient = (*httpClient)(nil)
