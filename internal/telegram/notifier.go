package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rewired-gh/betpulse/internal/logger"
	"github.com/rewired-gh/betpulse/internal/models"
	"github.com/rewired-gh/betpulse/internal/telemetry"
)

// Sender delivers a MarkdownV2 message.
type Sender interface {
	SendMarkdown(ctx context.Context, text string) error
}

// Marker records that an anomaly was delivered.
type Marker interface {
	MarkNotified(id string) error
}

// ErrQueueFull is returned by Notify when the delivery queue has no room.
var ErrQueueFull = errors.New("alert queue full")

type NotifierConfig struct {
	MinSeverity   models.Severity
	Cooldown      time.Duration // per market and anomaly type
	RatePerMinute float64
	Burst         int
	QueueSize     int // batches waiting for delivery
}

// Notifier filters anomalies and forwards the survivors as one message.
// Notify only queues; a worker started with Start does the sending.
type Notifier struct {
	sender  Sender
	marker  Marker
	metrics *telemetry.Metrics
	limiter *rate.Limiter
	config  NotifierConfig
	now     func() time.Time
	queue   chan []models.Anomaly

	mu       sync.Mutex
	lastSent map[string]time.Time
	failures int
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewNotifier creates a notifier. marker and metrics may be nil.
func NewNotifier(sender Sender, config NotifierConfig, marker Marker, metrics *telemetry.Metrics) *Notifier {
	if config.MinSeverity.Rank() == 0 {
		config.MinSeverity = models.SeverityHigh
	}
	if config.RatePerMinute <= 0 {
		config.RatePerMinute = 20
	}
	if config.Burst < 1 {
		config.Burst = 1
	}
	if config.QueueSize < 1 {
		config.QueueSize = 64
	}
	return &Notifier{
		sender:   sender,
		marker:   marker,
		metrics:  metrics,
		limiter:  rate.NewLimiter(rate.Limit(config.RatePerMinute/60), config.Burst),
		config:   config,
		now:      time.Now,
		queue:    make(chan []models.Anomaly, config.QueueSize),
		lastSent: make(map[string]time.Time),
	}
}

// Start runs the delivery worker until Stop or ctx ends. Calling Start on a
// running notifier does nothing.
func (n *Notifier) Start(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				n.discardQueued()
				return
			case batch := <-n.queue:
				if err := n.Deliver(ctx, batch); err != nil {
					logger.Warn("Failed to deliver anomaly alert: %v", err)
				}
			}
		}
	}(n.done)
}

// Stop halts the worker and waits for it to exit. Batches still queued are
// dropped. Safe to call more than once, or before Start.
func (n *Notifier) Stop() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (n *Notifier) discardQueued() {
	for {
		select {
		case <-n.queue:
			n.metrics.RecordAlert("dropped")
		default:
			return
		}
	}
}

func cooldownKey(a models.Anomaly) string {
	return a.MarketID + "|" + string(a.Type)
}

// filter drops anomalies below the minimum severity or inside the cooldown
// of an earlier alert for the same market and type.
func (n *Notifier) filter(anomalies []models.Anomaly) []models.Anomaly {
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []models.Anomaly
	for _, a := range anomalies {
		if a.Severity.Rank() < n.config.MinSeverity.Rank() {
			continue
		}
		if last, ok := n.lastSent[cooldownKey(a)]; ok && now.Sub(last) < n.config.Cooldown {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (n *Notifier) markSent(anomalies []models.Anomaly) {
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, a := range anomalies {
		n.lastSent[cooldownKey(a)] = now
	}
}

// Notify queues anomalies for delivery without blocking. A full queue drops
// the batch and returns ErrQueueFull.
func (n *Notifier) Notify(ctx context.Context, anomalies []models.Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}
	batch := make([]models.Anomaly, len(anomalies))
	copy(batch, anomalies)
	select {
	case n.queue <- batch:
		return nil
	default:
		n.metrics.RecordAlert("dropped")
		return ErrQueueFull
	}
}

// Deliver sends qualifying anomalies now, waiting for the rate limiter.
func (n *Notifier) Deliver(ctx context.Context, anomalies []models.Anomaly) error {
	due := n.filter(anomalies)
	if len(due) == 0 {
		return nil
	}
	if err := n.limiter.Wait(ctx); err != nil {
		n.metrics.RecordAlert("dropped")
		return fmt.Errorf("alert rate limit: %w", err)
	}
	if err := n.sender.SendMarkdown(ctx, formatAnomalies(due)); err != nil {
		n.metrics.RecordAlert("failed")
		return err
	}
	n.markSent(due)
	n.metrics.RecordAlert("sent")

	if n.marker != nil {
		for _, a := range due {
			if err := n.marker.MarkNotified(a.ID); err != nil {
				logger.Debug("Failed to mark anomaly %s notified: %v", a.ID, err)
			}
		}
	}
	return nil
}

// ReportError sends an error notice on the first failure of a consecutive run.
func (n *Notifier) ReportError(ctx context.Context, cause error) error {
	n.mu.Lock()
	n.failures++
	first := n.failures == 1
	n.mu.Unlock()
	if !first {
		return nil
	}
	text := fmt.Sprintf("⚠️ *Ingestion error*\n`%s`", escapeMarkdownV2(cause.Error()))
	return n.sender.SendMarkdown(ctx, text)
}

// ReportRecovery sends a recovery notice if failures were reported since the
// last recovery.
func (n *Notifier) ReportRecovery(ctx context.Context) error {
	n.mu.Lock()
	count := n.failures
	n.failures = 0
	n.mu.Unlock()
	if count == 0 {
		return nil
	}
	text := fmt.Sprintf("✅ *Ingestion recovered* after %d consecutive failure\\(s\\)", count)
	return n.sender.SendMarkdown(ctx, text)
}

// formatAnomalies renders anomalies as a MarkdownV2 message, grouped by market.
func formatAnomalies(anomalies []models.Anomaly) string {
	byMarket := make(map[string][]models.Anomaly)
	var markets []string
	for _, a := range anomalies {
		if _, ok := byMarket[a.MarketID]; !ok {
			markets = append(markets, a.MarketID)
		}
		byMarket[a.MarketID] = append(byMarket[a.MarketID], a)
	}
	sort.Strings(markets)

	var b strings.Builder
	b.WriteString("🚨 *Market Anomalies*\n\n")
	if !anomalies[0].DetectedAt.IsZero() {
		dateStr := escapeMarkdownV2(anomalies[0].DetectedAt.UTC().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "📅 Detected: %s\n\n", dateStr)
	}

	for i, market := range markets {
		fmt.Fprintf(&b, "%d\\. `%s`\n", i+1, escapeMarkdownV2(market))
		for _, a := range byMarket[market] {
			directionEmoji := "📈"
			if a.Value < a.Baseline {
				directionEmoji = "📉"
			}
			fmt.Fprintf(&b, "   %s *%s %s* %s vs baseline %s \\(%sσ\\)\n",
				directionEmoji,
				escapeMarkdownV2(string(a.Severity)),
				escapeMarkdownV2(string(a.Type)),
				escapeMarkdownV2(fmt.Sprintf("%.4g", a.Value)),
				escapeMarkdownV2(fmt.Sprintf("%.4g", a.Baseline)),
				escapeMarkdownV2(fmt.Sprintf("%.1f", a.Deviations)),
			)
		}
		b.WriteString("\n")
	}
	return b.String()
}
