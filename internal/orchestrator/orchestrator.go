// Package orchestrator runs one scan invocation over the watchlist: a
// bounded-fan-out per-ticker pipeline (snapshot -> features -> detectors ->
// scoring -> risk gate -> throttle -> explanation -> buffered write), then
// one batch insert. Concurrency is grounded on golang.org/x/sync/errgroup
// (already a pack dependency via SAbdulRahuman-opense-ai-agents),
// bounded with SetLimit the way that package's own docs demonstrate,
// since no teacher file carries an analogous worker pool to imitate
// directly.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sentryscan/sentryscan/internal/config"
	"github.com/sentryscan/sentryscan/internal/detectors"
	"github.com/sentryscan/sentryscan/internal/domain"
	"github.com/sentryscan/sentryscan/internal/errs"
	"github.com/sentryscan/sentryscan/internal/explain"
	"github.com/sentryscan/sentryscan/internal/features"
	"github.com/sentryscan/sentryscan/internal/provider"
	"github.com/sentryscan/sentryscan/internal/risk"
	"github.com/sentryscan/sentryscan/internal/scoring"
	"github.com/sentryscan/sentryscan/internal/store"
	"github.com/sentryscan/sentryscan/internal/throttle"
)

const (
	ivHistoryLookbackDays = 252
	retryMaxAttempts      = 2
	retryBaseDelay        = 500 * time.Millisecond
)

// Orchestrator wires every downstream component into a single-scan pipeline.
type Orchestrator struct {
	cfg        *config.Config
	store      *store.Store
	provider   provider.MarketDataProvider
	detectors  *detectors.Registry
	scorer     *scoring.Scorer
	riskGate   *risk.Gate
	throttler  *throttle.Throttler
	explainer  *explain.Generator
	account    domain.AccountState
	log        zerolog.Logger

	pacer func() time.Duration
}

// SetPacer installs a function the ticker fan-out consults before launching
// each worker, to stagger provider calls under the scheduler's adaptive
// inter-ticker delay. Nil (the default) dispatches with no pacing.
func (o *Orchestrator) SetPacer(pacer func() time.Duration) {
	o.pacer = pacer
}

// New builds an Orchestrator from its already-constructed dependencies.
func New(
	cfg *config.Config,
	s *store.Store,
	p provider.MarketDataProvider,
	reg *detectors.Registry,
	scorer *scoring.Scorer,
	gate *risk.Gate,
	throttler *throttle.Throttler,
	explainer *explain.Generator,
	account domain.AccountState,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg: cfg, store: s, provider: p, detectors: reg,
		scorer: scorer, riskGate: gate, throttler: throttler,
		explainer: explainer, account: account,
		log: log.With().Str("component", "orchestrator").Logger(),
	}
}

// tickerResult is the per-ticker sub-pipeline's output, collected into the
// scan's pending-write buffer before one batch insert.
type tickerResult struct {
	ticker    string
	features  *domain.FeatureSet
	alerts    []domain.Alert
	chains    []domain.ChainSnapshot
	warning   string
}

// RunScan executes one full pass over symbols and returns the scan row's
// final id, or an error if the scan could not even be created.
func (o *Orchestrator) RunScan(ctx context.Context, symbols []string) (int64, error) {
	start := time.Now()
	scanID, err := o.store.Scans.Create(start, o.cfg.ConfigHash)
	if err != nil {
		return 0, err
	}
	if err := o.store.Scans.SetStatus(scanID, domain.ScanRunning); err != nil {
		o.log.Warn().Err(err).Msg("failed to mark scan running")
	}

	results := o.collectTickers(ctx, scanID, symbols)

	var allAlerts []domain.Alert
	var allChains []domain.ChainSnapshot
	tickersScanned := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		tickersScanned++
		allAlerts = append(allAlerts, r.alerts...)
		allChains = append(allChains, r.chains...)
		if r.warning != "" {
			o.log.Warn().Str("ticker", r.ticker).Str("warning", r.warning).Msg("ticker sub-pipeline warning")
		}
	}

	status := domain.ScanCompleted
	errMsg := ""
	if err := o.store.Alerts.BatchInsert(scanID, allAlerts); err != nil {
		status = domain.ScanPartial
		errMsg = err.Error()
		o.log.Error().Err(err).Int64("scan_id", scanID).Msg("alert batch insert failed, marking scan partial")
	}
	for _, cs := range allChains {
		if err := o.store.Chains.Upsert(cs); err != nil {
			o.log.Error().Err(err).Str("ticker", cs.Ticker).Msg("chain snapshot upsert failed")
		}
	}

	runtime := time.Since(start).Seconds()
	if err := o.store.Scans.Finish(scanID, status, tickersScanned, len(allAlerts), runtime, errMsg); err != nil {
		o.log.Error().Err(err).Msg("failed to finalize scan row")
	}

	return scanID, nil
}

// collectTickers runs the per-ticker sub-pipeline for every symbol, bounded
// to cfg.Scheduler.Fanout concurrent workers.
func (o *Orchestrator) collectTickers(ctx context.Context, scanID int64, symbols []string) []*tickerResult {
	results := make([]*tickerResult, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	fanout := o.cfg.Scheduler.Fanout
	if fanout <= 0 {
		fanout = 8
	}
	g.SetLimit(fanout)

	for i, ticker := range symbols {
		i, ticker := i, ticker
		if i > 0 && o.pacer != nil {
			select {
			case <-time.After(o.pacer()):
			case <-gctx.Done():
			}
		}
		g.Go(func() error {
			results[i] = o.runTicker(gctx, scanID, ticker)
			return nil
		})
	}
	_ = g.Wait() // per-ticker failures are captured inside runTicker, never abort the scan

	return results
}

// runTicker executes the per-ticker sub-pipeline (spec steps a-i).
func (o *Orchestrator) runTicker(ctx context.Context, scanID int64, ticker string) *tickerResult {
	log := o.log.With().Str("ticker", ticker).Logger()
	result := &tickerResult{ticker: ticker}

	snapshot, ok, err := o.fetchSnapshotWithRetry(ctx, ticker)
	if err != nil || !ok {
		result.warning = "snapshot unavailable"
		if err != nil {
			result.warning = err.Error()
		}
		return result
	}

	ivHistory, err := o.store.IVHistory.Trailing(ticker, snapshot.Timestamp, ivHistoryLookbackDays)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read iv history, proceeding without it")
	}

	etLoc, err := time.LoadLocation("America/New_York")
	if err != nil {
		etLoc = time.UTC
	}
	fs := features.Compute(snapshot, o.cfg.ConfigHash, ivHistory, o.cfg.RiskFreeRate, etLoc)
	result.features = &fs

	if err := o.store.Features.Insert(scanID, fs); err != nil {
		log.Error().Err(err).Msg("failed to persist feature snapshot")
	}
	if fs.OptionsFront.ATMIV != nil {
		back := 0.0
		if fs.OptionsBack.ATMIV != nil {
			back = *fs.OptionsBack.ATMIV
		}
		hv20 := 0.0
		if fs.Volatility.HV20 != nil {
			hv20 = *fs.Volatility.HV20
		}
		if err := o.store.IVHistory.Save(ticker, snapshot.Timestamp, *fs.OptionsFront.ATMIV, back, hv20, 0); err != nil {
			log.Warn().Err(err).Msg("failed to save iv history observation")
		}
	}

	candidates := o.detectors.DetectAll(fs, o.cfg)
	now := snapshot.Timestamp
	for _, cand := range candidates {
		adjusted := o.scorer.Score(cand, ticker, fs, o.cfg)
		if adjusted < 60 {
			continue
		}
		candWithAdjusted := cand
		candWithAdjusted.Score = adjusted

		passed, reason := o.riskGate.Passes(candWithAdjusted, ticker, fs, o.account, o.cfg)
		if !passed {
			log.Info().Str("detector", cand.DetectorName).Str("reason", reason).Msg("risk gate dropped candidate")
			continue
		}

		should, err := o.throttler.ShouldAlert(ticker, o.cfg.Scoring.CooldownHours, o.cfg.Scoring.MaxAlertsPerDay, now)
		if err != nil {
			log.Error().Err(err).Msg("throttle check failed, dropping candidate")
			continue
		}
		if !should {
			continue
		}

		explanation := o.explainer.Generate(candWithAdjusted, ticker, fs)

		alert := domain.Alert{
			ScanID:        scanID,
			Ticker:        ticker,
			DetectorName:  cand.DetectorName,
			Score:         cand.Score,
			AdjustedScore: adjusted,
			Metrics:       cand.Metrics,
			Explanation:   explanation,
			Strategies:    cand.Strategies,
			Confidence:    cand.Confidence,
			CreatedAt:     now,
		}
		result.alerts = append(result.alerts, alert)

		if !o.throttler.RecordAlert(ticker, adjusted, now) {
			log.Error().Msg("failed to record alert in throttler state")
		}
	}

	result.chains = o.chainSnapshotsFor(scanID, ticker, fs, snapshot)
	return result
}

// fetchSnapshotWithRetry retries ProviderTransient failures up to
// retryMaxAttempts times with exponential delay, per spec's retry policy.
func (o *Orchestrator) fetchSnapshotWithRetry(ctx context.Context, ticker string) (domain.MarketSnapshot, bool, error) {
	delay := retryBaseDelay
	var lastErr error
	for attempt := 0; attempt <= retryMaxAttempts; attempt++ {
		snapshot, ok, err := o.provider.GetFullSnapshot(ctx, ticker)
		if err == nil {
			return snapshot, ok, nil
		}
		lastErr = err
		if !errors.Is(err, errs.ProviderTransient) {
			return domain.MarketSnapshot{}, false, err
		}
		if attempt == retryMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return domain.MarketSnapshot{}, false, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return domain.MarketSnapshot{}, false, lastErr
}

// chainArchive is the per-ticker, per-day JSON layout written under
// historical_data/chains/, grounded on the original's
// test_chain_snapshot_historization.py fixture ({ticker, snapshot_date,
// timestamp, underlying_price, chains: [{expiration, dte, calls, puts}]}).
type chainArchive struct {
	Ticker          string                `json:"ticker"`
	SnapshotDate    string                `json:"snapshot_date"`
	Timestamp       string                `json:"timestamp"`
	UnderlyingPrice float64               `json:"underlying_price"`
	Chains          []chainArchiveEntry   `json:"chains"`
}

type chainArchiveEntry struct {
	Expiration string                   `json:"expiration"`
	DTE        int                      `json:"dte"`
	Calls      []domain.OptionContract  `json:"calls"`
	Puts       []domain.OptionContract  `json:"puts"`
}

// chainSnapshotsFor builds one ChainSnapshot per expiration present in
// snapshot, deduplicated by (ticker, snapshot_date, expiration) via the
// store's upsert, and archives the full per-ticker chain set to
// historical_data/chains/YYYY-MM-DD/<TICKER>_chains.json.
func (o *Orchestrator) chainSnapshotsFor(scanID int64, ticker string, fs domain.FeatureSet, snapshot domain.MarketSnapshot) []domain.ChainSnapshot {
	dateDir := snapshot.Timestamp.Format("2006-01-02")
	filePath := filepath.Join(o.cfg.HistoricalDir, "chains", dateDir, ticker+"_chains.json")

	archive := chainArchive{
		Ticker:          ticker,
		SnapshotDate:    dateDir,
		Timestamp:       snapshot.Timestamp.Format(time.RFC3339),
		UnderlyingPrice: snapshot.SpotPrice,
	}

	out := make([]domain.ChainSnapshot, 0, len(snapshot.OptionsChains))
	for exp, chain := range snapshot.OptionsChains {
		dte := int(exp.Sub(snapshot.Timestamp).Hours() / 24)
		var totalVolume, totalOI int64
		for _, c := range chain.Calls {
			totalVolume += c.Volume
			totalOI += c.OpenInterest
		}
		for _, p := range chain.Puts {
			totalVolume += p.Volume
			totalOI += p.OpenInterest
		}
		chainJSON, err := json.Marshal(chain)
		if err != nil {
			chainJSON = []byte("{}")
		}
		out = append(out, domain.ChainSnapshot{
			ScanID:          scanID,
			Ticker:          ticker,
			SnapshotDate:    snapshot.Timestamp,
			Expiration:      exp,
			DTE:             dte,
			UnderlyingPrice: snapshot.SpotPrice,
			ChainJSON:       string(chainJSON),
			NumCalls:        len(chain.Calls),
			NumPuts:         len(chain.Puts),
			ATMIV:           fs.OptionsFront.ATMIV,
			TotalVolume:     totalVolume,
			TotalOI:         totalOI,
			FilePath:        filePath,
		})
		archive.Chains = append(archive.Chains, chainArchiveEntry{
			Expiration: exp.Format("2006-01-02"),
			DTE:        dte,
			Calls:      chain.Calls,
			Puts:       chain.Puts,
		})
	}

	if len(archive.Chains) > 0 {
		if err := writeChainArchive(filePath, archive); err != nil {
			o.log.Warn().Err(err).Str("ticker", ticker).Str("path", filePath).Msg("failed to write chain archive")
		}
	}

	return out
}

func writeChainArchive(path string, archive chainArchive) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
