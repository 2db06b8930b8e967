package audit

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/kudoshq/shrike/internal/domain"
)

// fakeRepo captures flag and audit writes.
type fakeRepo struct {
	savedFlags   []*domain.AbuseFlag
	savedEntries []*domain.AuditEntry
	saveErr      error
}

func (r *fakeRepo) SaveRecognition(ctx context.Context, tenantID string, rec *domain.Recognition) error {
	return nil
}
func (r *fakeRepo) GetRecognition(ctx context.Context, tenantID, recognitionID string) (*domain.Recognition, error) {
	return nil, nil
}
func (r *fakeRepo) UpdateRecognitionWeight(ctx context.Context, tenantID, recognitionID string, adjusted float64) error {
	return nil
}
func (r *fakeRepo) CountPair(ctx context.Context, tenantID, giverID, recipientID string, since time.Time) (int64, error) {
	return 0, nil
}
func (r *fakeRepo) CountByGiver(ctx context.Context, tenantID, giverID string, since time.Time) (int64, error) {
	return 0, nil
}
func (r *fakeRepo) CountDuplicateReason(ctx context.Context, tenantID, giverID, normalizedReason string, since time.Time) (int64, error) {
	return 0, nil
}
func (r *fakeRepo) SaveFlags(ctx context.Context, tenantID string, flags []*domain.AbuseFlag) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.savedFlags = append(r.savedFlags, flags...)
	return nil
}
func (r *fakeRepo) ListFlagsByRecognition(ctx context.Context, tenantID, recognitionID string) ([]*domain.AbuseFlag, error) {
	return nil, nil
}
func (r *fakeRepo) ListFlagsByStatus(ctx context.Context, tenantID string, status domain.FlagStatus, limit int) ([]*domain.AbuseFlag, error) {
	return nil, nil
}
func (r *fakeRepo) UpdateFlagStatus(ctx context.Context, tenantID, flagID string, status domain.FlagStatus, reviewedBy string) error {
	return nil
}
func (r *fakeRepo) SaveAuditEntry(ctx context.Context, tenantID string, entry *domain.AuditEntry) error {
	r.savedEntries = append(r.savedEntries, entry)
	return nil
}
func (r *fakeRepo) ListAuditEntries(ctx context.Context, tenantID string, since time.Time, limit int) ([]*domain.AuditEntry, error) {
	return nil, nil
}
func (r *fakeRepo) SaveRule(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	return nil
}
func (r *fakeRepo) GetRule(ctx context.Context, tenantID, ruleID string) (*domain.RuleConfig, error) {
	return nil, nil
}
func (r *fakeRepo) ListRules(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	return nil, nil
}
func (r *fakeRepo) Leaderboard(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	return nil, nil
}
func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

// fakeBus records published topics.
type fakeBus struct {
	published []string
}

func (b *fakeBus) Publish(ctx context.Context, tenantID, topic string, payload []byte) error {
	b.published = append(b.published, topic)
	return nil
}
func (b *fakeBus) Subscribe(ctx context.Context, tenantID, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	return nil, nil
}
func (b *fakeBus) Ping(ctx context.Context) error { return nil }
func (b *fakeBus) Close() error                   { return nil }

var hexPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

func TestHashIDFormat(t *testing.T) {
	h := NewHasher("")

	got := h.HashID("user-123")
	if !hexPattern.MatchString(got) {
		t.Errorf("expected 16 lowercase hex characters, got %q", got)
	}
}

func TestHashIDDeterministic(t *testing.T) {
	h := NewHasher("secret")

	if h.HashID("user-123") != h.HashID("user-123") {
		t.Error("same input must hash to same digest")
	}
	if h.HashID("user-123") == h.HashID("user-124") {
		t.Error("different inputs must not collide on adjacent IDs")
	}
}

func TestHashIDKeyChangesDigest(t *testing.T) {
	unkeyed := NewHasher("")
	keyed := NewHasher("secret")
	rekeyed := NewHasher("other-secret")

	if unkeyed.HashID("user-123") == keyed.HashID("user-123") {
		t.Error("keyed digest must differ from unkeyed")
	}
	if keyed.HashID("user-123") == rekeyed.HashID("user-123") {
		t.Error("digests under different keys must differ")
	}
}

func TestHashIDEmpty(t *testing.T) {
	h := NewHasher("secret")
	if got := h.HashID(""); got != "" {
		t.Errorf("empty input must hash to empty string, got %q", got)
	}
}

func TestPersistAssignsIdentity(t *testing.T) {
	repo := &fakeRepo{}
	sink := NewSink(repo, nil, NewHasher(""))

	flags := []domain.AbuseFlag{
		{Type: domain.FlagReciprocity, Severity: domain.SeverityMedium},
		{Type: domain.FlagContent, Severity: domain.SeverityLow},
	}

	err := sink.Persist(context.Background(), "tenant-001", "rec-001", flags, domain.SeverityMedium)
	if err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	if len(repo.savedFlags) != 2 {
		t.Fatalf("expected 2 flags saved, got %d", len(repo.savedFlags))
	}
	for _, f := range repo.savedFlags {
		if f.ID == "" {
			t.Error("expected flag ID to be assigned")
		}
		if f.TenantID != "tenant-001" {
			t.Errorf("expected tenant tenant-001, got %s", f.TenantID)
		}
		if f.RecognitionID != "rec-001" {
			t.Errorf("expected recognition rec-001, got %s", f.RecognitionID)
		}
	}
	if repo.savedFlags[0].ID == repo.savedFlags[1].ID {
		t.Error("flag IDs must be unique")
	}
}

func TestPersistEmptyFlagsIsNoop(t *testing.T) {
	repo := &fakeRepo{}
	sink := NewSink(repo, &fakeBus{}, NewHasher(""))

	if err := sink.Persist(context.Background(), "tenant-001", "rec-001", nil, domain.SeverityLow); err != nil {
		t.Fatalf("persist failed: %v", err)
	}
	if len(repo.savedFlags) != 0 {
		t.Errorf("expected no saves for empty flags, got %d", len(repo.savedFlags))
	}
}

func TestPersistPropagatesRepoError(t *testing.T) {
	repo := &fakeRepo{saveErr: errors.New("write failed")}
	sink := NewSink(repo, nil, NewHasher(""))

	flags := []domain.AbuseFlag{{Type: domain.FlagFrequency}}
	if err := sink.Persist(context.Background(), "tenant-001", "rec-001", flags, domain.SeverityLow); err == nil {
		t.Error("expected repository error to propagate")
	}
}

func TestPersistPublishesFlagEvents(t *testing.T) {
	bus := &fakeBus{}
	sink := NewSink(&fakeRepo{}, bus, NewHasher(""))

	flags := []domain.AbuseFlag{
		{Type: domain.FlagReciprocity},
		{Type: domain.FlagFrequency},
	}
	if err := sink.Persist(context.Background(), "tenant-001", "rec-001", flags, domain.SeverityMedium); err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	if len(bus.published) != 2 {
		t.Fatalf("expected 2 flag events, got %d", len(bus.published))
	}
	for _, topic := range bus.published {
		if topic != domain.TopicFlagCreated {
			t.Errorf("expected topic %s, got %s", domain.TopicFlagCreated, topic)
		}
	}
}

func TestPersistAlertsOnHighSeverity(t *testing.T) {
	for _, severity := range []domain.Severity{domain.SeverityHigh, domain.SeverityCritical} {
		bus := &fakeBus{}
		sink := NewSink(&fakeRepo{}, bus, NewHasher(""))

		flags := []domain.AbuseFlag{{Type: domain.FlagWeightManipulation}}
		if err := sink.Persist(context.Background(), "tenant-001", "rec-001", flags, severity); err != nil {
			t.Fatalf("persist failed: %v", err)
		}

		// one flag event + one alert
		if len(bus.published) != 2 {
			t.Fatalf("%s: expected 2 events, got %d", severity, len(bus.published))
		}
		if bus.published[1] != domain.TopicAlert {
			t.Errorf("%s: expected alert topic, got %s", severity, bus.published[1])
		}
	}
}

func TestPersistNoAlertOnLowSeverity(t *testing.T) {
	bus := &fakeBus{}
	sink := NewSink(&fakeRepo{}, bus, NewHasher(""))

	flags := []domain.AbuseFlag{{Type: domain.FlagContent}}
	if err := sink.Persist(context.Background(), "tenant-001", "rec-001", flags, domain.SeverityLow); err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	for _, topic := range bus.published {
		if topic == domain.TopicAlert {
			t.Error("LOW severity must not raise an alert")
		}
	}
}

func TestAuditHashesIdentifiers(t *testing.T) {
	repo := &fakeRepo{}
	sink := NewSink(repo, nil, NewHasher("secret"))

	meta := domain.AuditMetadata{
		FlagCount:      2,
		Severity:       domain.SeverityHigh,
		OriginalWeight: 2.0,
		AdjustedWeight: 0.98,
	}
	err := sink.Audit(context.Background(), "tenant-001", domain.EventAbuseFlagged, "user-giver", "rec-001", meta)
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}

	if len(repo.savedEntries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(repo.savedEntries))
	}
	entry := repo.savedEntries[0]
	if entry.EventCode != domain.EventAbuseFlagged {
		t.Errorf("expected event %s, got %s", domain.EventAbuseFlagged, entry.EventCode)
	}
	if entry.ActorHash == "user-giver" || entry.TargetHash == "rec-001" {
		t.Error("raw identifiers must not be stored")
	}
	if !hexPattern.MatchString(entry.ActorHash) || !hexPattern.MatchString(entry.TargetHash) {
		t.Error("expected hashed identifiers in audit entry")
	}
	if entry.Metadata.FlagCount != 2 {
		t.Errorf("expected flag count 2 in metadata, got %d", entry.Metadata.FlagCount)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}
