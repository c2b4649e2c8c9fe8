package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

const testModelDir = "../../models"

func testRunConfig(t *testing.T) Config {
	t.Helper()
	t.Setenv(EnvKafkaBrokers, "")

	cfg := DefaultConfig()
	cfg.HTTPAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	cfg.MetricsAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	cfg.ModelDir = testModelDir
	cfg.OutboxPollInterval = 20 * time.Millisecond
	return cfg
}

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := testRunConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := testRunConfig(t)
	cfg.StorageDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}
}

func TestRun_MissingModelArtifacts(t *testing.T) {
	cfg := testRunConfig(t)
	cfg.ModelDir = t.TempDir()

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "load model artifacts") {
		t.Fatalf("expected model loading error, got %v", err)
	}
}

func TestRun_ServesLedgerAPI(t *testing.T) {
	cfg := testRunConfig(t)
	cfg.StorageDriver = StorageDriverSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "AuctionData.db")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()
	defer func() {
		cancel()
		<-done
	}()

	base := "http://" + cfg.HTTPAddr
	waitForReady(t, base+"/readyz")

	body := []byte(`{"relatedCompany":"Acme","auctionStart":"2024-05-01T09:00:00Z","auctionEnd":"2024-05-04T09:00:00Z","branchCategory":"Cars"}`)
	req, err := http.NewRequest(http.MethodPost, base+"/auctions", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "run-test-1")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create auction: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var envelope struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != 1 {
		t.Fatalf("expected first auction id 1, got %d", envelope.Data.ID)
	}

	// Пересекающийся аукцион той же компании отклоняется.
	overlap := []byte(`{"relatedCompany":"Acme","auctionStart":"2024-05-03T09:00:00Z","auctionEnd":"2024-05-06T09:00:00Z"}`)
	resp2, err := http.Post(base+"/auctions", "application/json", bytes.NewReader(overlap))
	if err != nil {
		t.Fatalf("create overlapping auction: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for overlap, got %d", resp2.StatusCode)
	}

	metricsResp, err := http.Get("http://" + cfg.MetricsAddr + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	metricsResp.Body.Close()
	if metricsResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", metricsResp.StatusCode)
	}
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := postgresTestDSNCandidate()
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.Close() }()

	if deps.store == nil || deps.outboxRepo == nil || deps.idempotencyRepo == nil {
		t.Fatalf("postgres dependencies must be initialized: %+v", deps)
	}
	if err := deps.store.Ping(context.Background()); err != nil {
		t.Fatalf("postgres ping failed: %v", err)
	}
}

func waitForReady(t *testing.T, url string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("%s did not become ready", url)
}

func postgresTestDSNCandidate() string {
	if dsn := strings.TrimSpace(os.Getenv("LEDGER_POSTGRES_TEST_DSN")); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(os.Getenv(EnvPostgresDSN))
}
