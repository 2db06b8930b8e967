// Package worker provides async recognition processing for the Pro tier.
// Other platform services announce recognitions over the event bus; the
// worker evaluates them and writes the adjusted weight back to the store.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/kudoshq/shrike/internal/activity"
	"github.com/kudoshq/shrike/internal/detect"
	"github.com/kudoshq/shrike/internal/domain"
)

// Worker processes recognitions asynchronously from the EventBus.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	engine   *detect.Engine
	activity *activity.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, engine *detect.Engine, act *activity.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		engine:   engine,
		activity: act,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicRecognitionIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	// Subscribe to recognition ingested topic
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicRecognitionIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRecognition(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicRecognitionIngested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processRecognition(ctx, msg.TenantID, msg)
}

// RecognitionMessage is the message payload for async recognition processing.
type RecognitionMessage struct {
	RecognitionID string  `json:"recognitionId"`
	TenantID      string  `json:"tenantId"`
	TraceID       string  `json:"traceId"`
	GiverID       string  `json:"giverId"`
	RecipientID   string  `json:"recipientId"`
	GiverRole     string  `json:"giverRole"`
	Reason        string  `json:"reason"`
	Weight        float64 `json:"weight"`
	EvidenceCount int     `json:"evidenceCount"`
}

// processRecognition evaluates a recognition through the detection pipeline.
func (w *Worker) processRecognition(ctx context.Context, tenantID string, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()

	start := time.Now()

	// Parse message
	var recMsg RecognitionMessage
	if err := json.Unmarshal(msg.Payload, &recMsg); err != nil {
		slog.Error("failed to parse recognition message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if recMsg.TenantID != "" {
		tenantID = recMsg.TenantID
	}

	traceID := recMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing recognition",
		"recognition_id", recMsg.RecognitionID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	rec := &domain.Recognition{
		ID:            recMsg.RecognitionID,
		TenantID:      tenantID,
		GiverID:       recMsg.GiverID,
		RecipientID:   recMsg.RecipientID,
		GiverRole:     domain.GiverRole(recMsg.GiverRole),
		Reason:        recMsg.Reason,
		Weight:        recMsg.Weight,
		EvidenceCount: recMsg.EvidenceCount,
		CreatedAt:     time.Now().UTC(),
	}

	// The platform stored the row before announcing it; drop the cached
	// counts it changed before evaluating.
	if w.activity != nil {
		w.activity.InvalidateCounts(ctx, tenantID, rec)
	}

	// Evaluate; the engine never errors, it fails open.
	result := w.engine.Evaluate(ctx, rec)
	result.Metadata.TraceID = traceID

	// Write the adjusted weight back so leaderboard scoring sees it.
	if result.IsAbusive && result.AdjustedWeight != nil && w.repo != nil {
		if err := w.repo.UpdateRecognitionWeight(ctx, tenantID, rec.ID, *result.AdjustedWeight); err != nil {
			slog.Error("failed to update recognition weight",
				"recognition_id", rec.ID,
				"error", err,
			)
		}
	}

	// Publish result to evaluated topic
	resultPayload, _ := json.Marshal(map[string]any{
		"recognitionId": rec.ID,
		"decision":      domain.DecisionFor(result),
		"isAbusive":     result.IsAbusive,
		"severity":      result.Severity,
		"traceId":       traceID,
	})
	if err := w.bus.Publish(ctx, tenantID, domain.TopicRecognitionEvaluated, resultPayload); err != nil {
		slog.Error("failed to publish evaluated event",
			"recognition_id", rec.ID,
			"error", err,
		)
	}

	slog.Info("recognition processed",
		"recognition_id", rec.ID,
		"tenant_id", tenantID,
		"is_abusive", result.IsAbusive,
		"severity", result.Severity,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers. It blocks until in-flight
// evaluations finish, so no weight writeback lands after it returns.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
