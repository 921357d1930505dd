package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/promodescuentos/dealwatcher/internal/clock"
	"github.com/promodescuentos/dealwatcher/internal/healthz"
	"github.com/promodescuentos/dealwatcher/internal/models"
	"github.com/promodescuentos/dealwatcher/internal/storage"
)

type fakeScraper struct {
	deals []models.RawDeal
	err   error
}

func (f *fakeScraper) FetchNewest(ctx context.Context) ([]models.RawDeal, error) {
	return f.deals, f.err
}

type fakeNotifier struct {
	mu       sync.Mutex
	sent     []string
	sendErr  error
	errCalls int
	recCalls int
}

func (f *fakeNotifier) Send(ctx context.Context, recipientID string, msg models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, recipientID)
	return nil
}

func (f *fakeNotifier) SendError(ctx context.Context, recipientID string, cycleErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errCalls++
	return nil
}

func (f *fakeNotifier) SendRecovery(ctx context.Context, recipientID string, failureCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recCalls++
	return nil
}

func newTestOrchestrator(t *testing.T, scraper Scraper, notifier *fakeNotifier) (*Orchestrator, *storage.Storage) {
	t.Helper()
	s, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	reg := prometheus.NewRegistry()
	metrics := healthz.NewMetrics(reg)
	tracker := healthz.NewTracker(20 * time.Minute)

	o := New(scraper, s, notifier, clock.Real{}, metrics, tracker, Config{
		PollIntervalMin:   5 * time.Minute,
		PollIntervalMax:   12 * time.Minute,
		CycleSoftDeadline: 4 * time.Minute,
		NotifyConcurrency: 4,
	})
	return o, s
}

func seedHotDeal(url string) models.RawDeal {
	return models.RawDeal{
		URL: url, Title: "Hot deal", Merchant: "Acme",
		Price: 10, Discount: 50, Temperature: 500,
		PublishedAt: time.Now().Add(-5 * time.Minute),
	}
}

func TestRunCycle_NotifiesOnHotDeal(t *testing.T) {
	notifier := &fakeNotifier{}
	scraper := &fakeScraper{deals: []models.RawDeal{seedHotDeal("https://example.com/1")}}
	o, s := newTestOrchestrator(t, scraper, notifier)

	if err := s.SeedRecipients(context.Background(), []string{"111", "222"}); err != nil {
		t.Fatalf("SeedRecipients: %v", err)
	}
	if err := s.SetConfig(context.Background(), "viral_threshold", 1.0); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}

	n, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if n != 1 {
		t.Errorf("scored = %d, want 1", n)
	}

	notifier.mu.Lock()
	sent := len(notifier.sent)
	notifier.mu.Unlock()
	if sent != 2 {
		t.Errorf("notifications sent = %d, want 2", sent)
	}

	deal, err := s.GetDealByURL(context.Background(), "https://example.com/1")
	if err != nil {
		t.Fatalf("GetDealByURL: %v", err)
	}
	if deal.MaxRatingNotified == 0 {
		t.Error("expected max_rating_notified to be updated after a successful notify")
	}
}

func TestRunCycle_SkipsExpiredDeal(t *testing.T) {
	notifier := &fakeNotifier{}
	deal := seedHotDeal("https://example.com/expired")
	deal.Expired = true
	scraper := &fakeScraper{deals: []models.RawDeal{deal}}
	o, s := newTestOrchestrator(t, scraper, notifier)

	if err := s.SeedRecipients(context.Background(), []string{"111"}); err != nil {
		t.Fatalf("SeedRecipients: %v", err)
	}

	if _, err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	notifier.mu.Lock()
	sent := len(notifier.sent)
	notifier.mu.Unlock()
	if sent != 0 {
		t.Errorf("expected no notifications for expired deal, got %d", sent)
	}
}

func TestRunCycle_PropagatesFetchError(t *testing.T) {
	scraper := &fakeScraper{err: errors.New("feed unreachable")}
	o, _ := newTestOrchestrator(t, scraper, &fakeNotifier{})

	_, err := o.RunCycle(context.Background())
	if err == nil {
		t.Fatal("expected error when scraper fails")
	}
}

func TestRunCycleAndHandle_SendsErrorAlertOnThirdConsecutiveFailure(t *testing.T) {
	notifier := &fakeNotifier{}
	scraper := &fakeScraper{err: errors.New("boom")}
	o, s := newTestOrchestrator(t, scraper, notifier)

	if err := s.SeedRecipients(context.Background(), []string{"111"}); err != nil {
		t.Fatalf("SeedRecipients: %v", err)
	}

	o.runCycleAndHandle(context.Background())
	notifier.mu.Lock()
	errCalls := notifier.errCalls
	notifier.mu.Unlock()
	if errCalls != 0 {
		t.Errorf("error alerts sent after 1st failure = %d, want 0", errCalls)
	}

	o.runCycleAndHandle(context.Background())
	notifier.mu.Lock()
	errCalls = notifier.errCalls
	notifier.mu.Unlock()
	if errCalls != 0 {
		t.Errorf("error alerts sent after 2nd failure = %d, want 0", errCalls)
	}

	o.runCycleAndHandle(context.Background())
	notifier.mu.Lock()
	errCalls = notifier.errCalls
	notifier.mu.Unlock()
	if errCalls != 1 {
		t.Errorf("error alerts sent after 3rd consecutive failure = %d, want 1", errCalls)
	}
}

func TestRunCycleAndHandle_SendsRecoveryAfterFailures(t *testing.T) {
	notifier := &fakeNotifier{}
	scraper := &fakeScraper{err: errors.New("boom")}
	o, s := newTestOrchestrator(t, scraper, notifier)

	if err := s.SeedRecipients(context.Background(), []string{"111"}); err != nil {
		t.Fatalf("SeedRecipients: %v", err)
	}

	o.runCycleAndHandle(context.Background())
	scraper.err = nil
	scraper.deals = nil
	o.runCycleAndHandle(context.Background())

	notifier.mu.Lock()
	recCalls := notifier.recCalls
	notifier.mu.Unlock()
	if recCalls != 1 {
		t.Errorf("recovery alerts sent = %d, want 1", recCalls)
	}
}
