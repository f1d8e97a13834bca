package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/caseflow/backend/internal/telemetry"
)

// Alert severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Well-known alert types.
const (
	TypeFailureSpike = "failures_spike"
	TypeJobBacklog   = "job_backlog"
)

// maxThrottleEntries bounds the throttle map; the oldest half is evicted
// once it is exceeded.
const maxThrottleEntries = 1000

type throttleKey struct {
	alertType string
	key       string
}

type failureEntry struct {
	at        time.Time
	errorType string
}

// SendOptions shape one alert delivery.
type SendOptions struct {
	Severity     string
	ThrottleKey  string
	SkipThrottle bool
}

// Options configure a Dispatcher.
type Options struct {
	// WebhookURL is the outbound notification endpoint. Empty means alerts
	// degrade to structured logging only.
	WebhookURL     string
	Throttle       time.Duration
	FailureWindow  time.Duration
	SpikeThreshold int
}

// Dispatcher delivers deduplicated operational alerts and watches for
// sustained failure spikes.
type Dispatcher struct {
	opts   Options
	client *http.Client
	log    *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastSent map[throttleKey]time.Time
	window   []failureEntry
}

func NewDispatcher(opts Options, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if opts.Throttle <= 0 {
		opts.Throttle = 30 * time.Minute
	}
	if opts.FailureWindow <= 0 {
		opts.FailureWindow = 15 * time.Minute
	}
	if opts.SpikeThreshold <= 0 {
		opts.SpikeThreshold = 8
	}
	return &Dispatcher{
		opts:     opts,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
		now:      time.Now,
		lastSent: make(map[throttleKey]time.Time),
	}
}

// Send delivers one alert unless an alert for the same (type, throttleKey)
// went out within the throttle interval. The send timestamp is recorded even
// when delivery fails, so a down channel is not hammered by retries.
func (d *Dispatcher) Send(ctx context.Context, alertType, message string, opts SendOptions) {
	if opts.Severity == "" {
		opts.Severity = SeverityWarning
	}
	key := throttleKey{alertType: alertType, key: opts.ThrottleKey}
	now := d.now()

	d.mu.Lock()
	if !opts.SkipThrottle {
		if last, ok := d.lastSent[key]; ok && now.Sub(last) < d.opts.Throttle {
			d.mu.Unlock()
			telemetry.AlertsThrottled.Inc()
			d.log.Debug("alert throttled", "type", alertType, "throttle_key", opts.ThrottleKey)
			return
		}
	}
	d.lastSent[key] = now
	d.evictLocked()
	d.mu.Unlock()

	telemetry.AlertsSent.Inc()
	if err := d.deliver(ctx, alertType, message, opts.Severity, now); err != nil {
		d.log.Error("alert delivery failed, logged instead",
			"type", alertType, "severity", opts.Severity, "message", message, "error", err)
	}
}

// deliver posts the alert to the webhook, or logs it when unconfigured.
func (d *Dispatcher) deliver(ctx context.Context, alertType, message, severity string, at time.Time) error {
	if d.opts.WebhookURL == "" {
		d.log.Warn("alert", "type", alertType, "severity", severity, "message", message)
		return nil
	}
	body, err := json.Marshal(map[string]string{
		"type":     alertType,
		"severity": severity,
		"message":  message,
		"at":       at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.opts.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// evictLocked drops the oldest half of the throttle state once it exceeds
// the bound. Caller holds d.mu.
func (d *Dispatcher) evictLocked() {
	if len(d.lastSent) <= maxThrottleEntries {
		return
	}
	type aged struct {
		key throttleKey
		at  time.Time
	}
	all := make([]aged, 0, len(d.lastSent))
	for k, at := range d.lastSent {
		all = append(all, aged{key: k, at: at})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	for _, a := range all[:len(all)/2] {
		delete(d.lastSent, a.key)
	}
}

// RecordFailure appends a failure to the sliding window and emits a spike
// alert once the window fills. The window is not reset afterward, so a
// sustained spike re-alerts only at throttle cadence.
func (d *Dispatcher) RecordFailure(ctx context.Context, errorType string) {
	now := d.now()
	cutoff := now.Add(-d.opts.FailureWindow)

	d.mu.Lock()
	d.window = append(d.window, failureEntry{at: now, errorType: errorType})
	pruned := d.window[:0]
	for _, e := range d.window {
		if e.at.After(cutoff) {
			pruned = append(pruned, e)
		}
	}
	d.window = pruned

	if len(d.window) < d.opts.SpikeThreshold {
		d.mu.Unlock()
		return
	}
	counts := make(map[string]int)
	for _, e := range d.window {
		counts[e.errorType]++
	}
	total := len(d.window)
	d.mu.Unlock()

	d.Send(ctx, TypeFailureSpike,
		fmt.Sprintf("%d job failures within %s: %s", total, d.opts.FailureWindow, formatCounts(counts)),
		SendOptions{Severity: SeverityError})
}

// CheckBacklog alerts when the queue depth crosses the threshold, escalating
// severity past twice the threshold.
func (d *Dispatcher) CheckBacklog(ctx context.Context, queued, threshold int) {
	if threshold <= 0 || queued < threshold {
		return
	}
	severity := SeverityWarning
	if queued >= 2*threshold {
		severity = SeverityError
	}
	d.Send(ctx, TypeJobBacklog,
		fmt.Sprintf("job queue depth %d exceeds threshold %d", queued, threshold),
		SendOptions{Severity: severity})
}

func formatCounts(counts map[string]int) string {
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	var buf bytes.Buffer
	for i, t := range types {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s=%d", t, counts[t])
	}
	return buf.String()
}
