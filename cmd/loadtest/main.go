// Command loadtest нагружает один аукцион параллельными POST /lots или один лот
// параллельными POST /bids и проверяет, что номера выданы подряд, без дыр и повторов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type loadMode string

const (
	modeLots loadMode = "lots"
	modeBids loadMode = "bids"
)

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeLots, modeBids:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode %q (want lots or bids)", value)
	}
}

type config struct {
	baseURL     string
	mode        loadMode
	total       int // 0 в режиме duration: без ограничения по числу сценариев
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	company     string
	category    string
	outputPath  string
}

func readConfig(args []string, output io.Writer) (config, error) {
	var (
		cfg  config
		mode string
	)
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "ledger HTTP API base URL")
	fs.StringVar(&mode, "mode", string(modeLots), "what to create concurrently: lots | bids")
	fs.IntVar(&cfg.total, "total", 400, "scenarios to run; with -duration only applies when set explicitly")
	fs.DurationVar(&cfg.duration, "duration", 0, "run for this long instead of a fixed count")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "parallel workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&cfg.company, "company", "", "company of the target auction (random per run by default)")
	fs.StringVar(&cfg.category, "category", "Cars", "branch category of the auction and main category of lots")
	fs.StringVar(&cfg.outputPath, "output", "", "write the JSON report to this file")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	totalSet := false
	fs.Visit(func(f *flag.Flag) { totalSet = totalSet || f.Name == "total" })
	if cfg.duration > 0 && !totalSet {
		cfg.total = 0
	}
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	var errs []error
	parsedMode, err := parseMode(mode)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.mode = parsedMode
	if cfg.baseURL == "" {
		errs = append(errs, errors.New("base-url is required"))
	}
	switch {
	case cfg.duration < 0:
		errs = append(errs, errors.New("duration must be >= 0"))
	case cfg.duration == 0 && cfg.total <= 0:
		errs = append(errs, errors.New("total must be > 0 without duration"))
	case cfg.total < 0:
		errs = append(errs, errors.New("total must be >= 0"))
	}
	if cfg.concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be > 0"))
	}
	if cfg.timeout <= 0 {
		errs = append(errs, errors.New("timeout must be > 0"))
	}
	if strings.TrimSpace(cfg.category) == "" {
		errs = append(errs, errors.New("category is required"))
	}
	return cfg, errors.Join(errs...)
}

func main() {
	cfg, err := readConfig(os.Args[1:], os.Stderr)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.WithField("component", "loadtest")
	client := newHTTPClient(cfg.baseURL, &http.Client{
		Transport: &http.Transport{MaxIdleConnsPerHost: cfg.concurrency},
	})

	result, err := run(ctx, cfg, client, logger)
	if err != nil {
		logger.WithError(err).Error("load test aborted")
		os.Exit(1)
	}
	result.print(os.Stdout)

	if cfg.outputPath != "" {
		if err := writeReport(cfg.outputPath, result); err != nil {
			logger.WithError(err).Error("failed to write report")
			os.Exit(1)
		}
	}
	if !result.passed() {
		os.Exit(1)
	}
}

// run готовит цель и гоняет сценарии, пока не исчерпан total, не истёк duration или не отменён ctx.
func run(ctx context.Context, cfg config, client ledgerClient, logger *log.Entry) (report, error) {
	runID := uuid.NewString()
	if cfg.company == "" {
		cfg.company = "load-" + runID
	}

	rec := newRecorder()
	tgt, err := prepareTarget(ctx, client, cfg, rec)
	if err != nil {
		return report{}, err
	}
	logger.WithFields(log.Fields{
		"run_id":     runID,
		"mode":       cfg.mode,
		"auction_id": tgt.auctionID,
		"lot_nr":     tgt.lotNr,
	}).Info("target prepared")

	window := ctx
	if cfg.duration > 0 {
		var cancel context.CancelFunc
		window, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
	}

	var issued atomic.Int64
	next := func() (int, bool) {
		if window.Err() != nil {
			return 0, false
		}
		i := int(issued.Add(1) - 1)
		return i, cfg.total == 0 || i < cfg.total
	}

	started := time.Now()
	var wg sync.WaitGroup
	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, ok := next(); ok; i, ok = next() {
				// Начатый сценарий доигрывается после окончания окна, иначе он засчитался бы как ошибка.
				_ = runScenario(context.WithoutCancel(ctx), client, cfg, tgt, i, runID, rec)
			}
		}()
	}
	wg.Wait()

	result := rec.report(started, time.Since(started))
	result.RunID = runID
	result.Mode = cfg.mode
	return result, nil
}

// target: аукцион и (в режиме bids) лот, куда пишут все воркеры.
type target struct {
	auctionID int64
	lotNr     int
}

func prepareTarget(ctx context.Context, client ledgerClient, cfg config, rec *recorder) (target, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	start := time.Now().UTC().Truncate(time.Second)
	began := time.Now()
	auctionID, status, err := client.CreateAuction(ctx, auctionRequest{
		RelatedCompany: cfg.company,
		AuctionStart:   start,
		AuctionEnd:     start.Add(72 * time.Hour),
		BranchCategory: cfg.category,
	}, "")
	rec.observe(opCreateAuction, status, time.Since(began))
	if err != nil {
		return target{}, fmt.Errorf("create auction: %w", err)
	}

	tgt := target{auctionID: auctionID}
	if cfg.mode != modeBids {
		return tgt, nil
	}

	began = time.Now()
	tgt.lotNr, status, err = client.CreateLot(ctx, newLotRequest(auctionID, cfg.category), "")
	rec.observe(opCreateLot, status, time.Since(began))
	if err != nil {
		return target{}, fmt.Errorf("create lot: %w", err)
	}
	return tgt, nil
}

func newLotRequest(auctionID int64, category string) lotRequest {
	return lotRequest{
		AuctionID:      auctionID,
		NumberOfItems:  1,
		EstimatedValue: "1000.00",
		ReserveBid:     "100.00",
		MainCategory:   category,
	}
}

// runScenario создаёт один лот или одну ставку с уникальным Idempotency-Key.
func runScenario(ctx context.Context, client ledgerClient, cfg config, tgt target, index int, runID string, rec *recorder) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	key := fmt.Sprintf("lt-%s-%s-%d", cfg.mode, runID, index)
	began := time.Now()

	var (
		op     string
		number int
		status int
		err    error
	)
	switch cfg.mode {
	case modeBids:
		op = opCreateBid
		number, status, err = client.CreateBid(ctx, bidRequest{
			AuctionID: tgt.auctionID,
			LotNr:     tgt.lotNr,
			AccountID: int64(index + 1),
			BidPrice:  fmt.Sprintf("%d.00", 100+index),
		}, key)
	default:
		op = opCreateLot
		number, status, err = client.CreateLot(ctx, newLotRequest(tgt.auctionID, cfg.category), key)
	}
	elapsed := time.Since(began)
	rec.observe(op, status, elapsed)
	rec.observe(opScenario, status, elapsed)
	if err != nil {
		return err
	}
	rec.assigned(number)
	return nil
}
