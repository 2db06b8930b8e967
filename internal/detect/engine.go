package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kudoshq/shrike/internal/domain"
)

// EngineVersion is stamped into every result's metadata.
const EngineVersion = "shrike-1.0"

// sinkTimeout bounds the fire-and-forget flag/audit writes.
const sinkTimeout = 5 * time.Second

// Sink is the narrow write contract the engine uses when a verdict is
// abusive. Implementations persist flags and audit entries; errors are
// logged by the engine and never change the verdict already returned.
type Sink interface {
	Persist(ctx context.Context, tenantID, recognitionID string, flags []domain.AbuseFlag, severity domain.Severity) error
	Audit(ctx context.Context, tenantID, eventCode, actorID, targetID string, meta domain.AuditMetadata) error
}

// Engine is the abuse detection orchestrator. It runs the detectors
// concurrently over the shared ActivityReader, aggregates severity, adjusts
// the weight, and hands abusive verdicts to the sink.
//
// Every failure mode degrades to "not abusive": abuse detection is a
// risk-reduction signal, never a gate on legitimate recognition flow.
type Engine struct {
	cfg       domain.DetectionConfig
	detectors []Detector
	rules     *RuleSet
	reader    ActivityReader
	sink      Sink

	aggregator *Aggregator
	adjuster   *Adjuster

	sinkWG sync.WaitGroup
}

// NewEngine creates an engine with the four built-in detectors in their
// canonical order. rules may be nil when no custom rules are configured.
func NewEngine(cfg domain.DetectionConfig, reader ActivityReader, sink Sink, rules *RuleSet) *Engine {
	return &Engine{
		cfg: cfg,
		detectors: []Detector{
			NewReciprocityDetector(cfg),
			NewFrequencyDetector(cfg),
			NewContentDetector(cfg),
			NewWeightDetector(cfg),
		},
		rules:      rules,
		reader:     reader,
		sink:       sink,
		aggregator: NewAggregator(cfg),
		adjuster:   NewAdjuster(cfg),
	}
}

// Evaluate runs the full detection pipeline for one recognition. It never
// returns an error: any internal failure is logged and mapped to the
// canonical fail-open result.
func (e *Engine) Evaluate(ctx context.Context, rec *domain.Recognition) *domain.DetectionResult {
	start := time.Now()

	res, err := e.evaluate(ctx, rec)
	if err != nil {
		slog.Warn("abuse detection failed open",
			"recognition_id", rec.ID,
			"giver_id", rec.GiverID,
			"error", err,
		)
		return &domain.DetectionResult{
			IsAbusive:   false,
			Flags:       []domain.AbuseFlag{},
			Severity:    domain.SeverityLow,
			ReasonCodes: []string{},
			Metadata: domain.DetectionMetadata{
				EvaluatedAt:   start.UTC(),
				DurationMs:    time.Since(start).Milliseconds(),
				DetectorsRun:  len(e.detectors),
				FailedOpen:    true,
				EngineVersion: EngineVersion,
			},
		}
	}

	res.Metadata.DurationMs = time.Since(start).Milliseconds()
	return res
}

// evaluate is the internal error-returning pipeline; the Evaluate boundary
// maps every error to the fail-open value.
func (e *Engine) evaluate(ctx context.Context, rec *domain.Recognition) (*domain.DetectionResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.DetectorTimeout)
	defer cancel()

	type output struct {
		flags []domain.AbuseFlag
		err   error
	}

	// Detectors only read; run them concurrently and join before
	// aggregation. Results are collected per-slot so flag order stays the
	// declaration order regardless of completion order.
	outputs := make([]output, len(e.detectors))
	var wg sync.WaitGroup

	for i, d := range e.detectors {
		wg.Add(1)
		go func(idx int, det Detector) {
			defer wg.Done()
			flags, err := det.Check(ctx, rec, e.reader)
			if err != nil {
				err = fmt.Errorf("detector %s: %w", det.Name(), err)
			}
			outputs[idx] = output{flags: flags, err: err}
		}(i, d)
	}

	wg.Wait()

	flags := make([]domain.AbuseFlag, 0, 4)
	for _, out := range outputs {
		if out.err != nil {
			return nil, out.err
		}
		flags = append(flags, out.flags...)
	}

	if e.rules != nil && e.rules.Len() > 0 {
		counts, err := e.gatherCounts(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("custom rules: %w", err)
		}
		flags = append(flags, e.rules.Evaluate(rec, counts)...)
	}

	now := time.Now().UTC()
	reasonCodes := make([]string, 0, len(flags))
	for i := range flags {
		flags[i].FlaggedBy = domain.SystemActor
		flags[i].FlaggedAt = now
		flags[i].Status = domain.FlagPending
		reasonCodes = append(reasonCodes, domain.ReasonCodeFor(flags[i].Type))
	}

	res := &domain.DetectionResult{
		IsAbusive:   len(flags) > 0,
		Flags:       flags,
		Severity:    e.aggregator.Aggregate(flags),
		ReasonCodes: reasonCodes,
		Metadata: domain.DetectionMetadata{
			EvaluatedAt:   start.UTC(),
			DetectorsRun:  len(e.detectors),
			EngineVersion: EngineVersion,
		},
	}

	if res.IsAbusive {
		adjusted := e.adjuster.Apply(rec.Weight, flags)
		res.AdjustedWeight = &adjusted
		e.dispatchSink(rec, res)
	}

	return res, nil
}

// gatherCounts collects the aggregate numbers for custom rule activation.
func (e *Engine) gatherCounts(ctx context.Context, rec *domain.Recognition) (Counts, error) {
	reciprocityWindow := time.Duration(e.cfg.ReciprocityWindowDays) * 24 * time.Hour
	duplicateWindow := time.Duration(e.cfg.DuplicateWindowDays) * 24 * time.Hour

	var counts Counts
	var err error

	if counts.Pair, err = e.reader.PairCount(ctx, rec.TenantID, rec.GiverID, rec.RecipientID, reciprocityWindow); err != nil {
		return counts, err
	}
	if counts.Mutual, err = e.reader.MutualCount(ctx, rec.TenantID, rec.GiverID, rec.RecipientID, reciprocityWindow); err != nil {
		return counts, err
	}
	if counts.Daily, err = e.reader.GiverCount(ctx, rec.TenantID, rec.GiverID, 24*time.Hour); err != nil {
		return counts, err
	}
	if counts.Weekly, err = e.reader.GiverCount(ctx, rec.TenantID, rec.GiverID, 7*24*time.Hour); err != nil {
		return counts, err
	}
	if counts.Duplicate, err = e.reader.DuplicateReasonCount(ctx, rec.TenantID, rec.GiverID, rec.Reason, duplicateWindow); err != nil {
		return counts, err
	}

	return counts, nil
}

// dispatchSink hands an abusive verdict to the sink without blocking the
// caller. A detached context is used so cancelling the originating request
// does not silently drop the writes.
func (e *Engine) dispatchSink(rec *domain.Recognition, res *domain.DetectionResult) {
	if e.sink == nil {
		return
	}

	e.sinkWG.Add(1)
	go func() {
		defer e.sinkWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()

		if err := e.sink.Persist(ctx, rec.TenantID, rec.ID, res.Flags, res.Severity); err != nil {
			slog.Error("failed to persist abuse flags",
				"recognition_id", rec.ID,
				"flag_count", len(res.Flags),
				"error", err,
			)
		}

		meta := domain.AuditMetadata{
			FlagCount:      len(res.Flags),
			Severity:       res.Severity,
			OriginalWeight: rec.Weight,
		}
		if res.AdjustedWeight != nil {
			meta.AdjustedWeight = *res.AdjustedWeight
		}

		if err := e.sink.Audit(ctx, rec.TenantID, domain.EventAbuseFlagged, rec.GiverID, rec.ID, meta); err != nil {
			slog.Error("failed to write audit entry",
				"recognition_id", rec.ID,
				"error", err,
			)
		}
	}()
}

// Drain blocks until all outstanding sink writes have finished. Called on
// shutdown so flagged evidence is not lost.
func (e *Engine) Drain() {
	e.sinkWG.Wait()
}
