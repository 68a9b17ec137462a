// Package orchestrator routes completion requests across providers in a fixed
// priority order, tracking health, quota and circuit state per provider.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/andrew/mentor-gateway/internal/agents"
	"github.com/andrew/mentor-gateway/internal/database/models"
	"github.com/andrew/mentor-gateway/internal/logging"
	"github.com/andrew/mentor-gateway/internal/metrics"
)

const (
	DefaultCircuitThreshold    = 5
	DefaultAlertResetPercent   = 10
	DefaultHealthCheckInterval = 5 * time.Minute
)

// DefaultAlertThresholds are the quota percentages that raise an alert once per day
var DefaultAlertThresholds = []float64{80, 90, 95, 99}

// UsageLogger persists one entry per completion attempt
type UsageLogger interface {
	CreateUsageLog(ctx context.Context, log *models.UsageLog) error
}

// QuotaAlert is delivered to alert callbacks when a threshold is first crossed in a day
type QuotaAlert struct {
	Provider    string    `json:"provider"`
	PercentUsed float64   `json:"percent_used"`
	Threshold   float64   `json:"threshold"`
	At          time.Time `json:"at"`
}

// AlertFunc receives quota alerts. It runs synchronously and must not block for long.
type AlertFunc func(QuotaAlert)

// Orchestrator owns the ordered provider list and all per-provider routing state
type Orchestrator struct {
	states []*providerState

	circuitThreshold  int
	alertThresholds   []float64
	alertResetPercent float64

	logger   *log.Logger
	recorder metrics.Recorder
	usage    UsageLogger
	now      func() time.Time

	alertMu   sync.RWMutex
	callbacks []AlertFunc

	loopMu   sync.Mutex
	stopLoop context.CancelFunc
	loopDone chan struct{}
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithCircuitThreshold sets how many consecutive errors open a provider's circuit
func WithCircuitThreshold(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.circuitThreshold = n
		}
	}
}

// WithAlertThresholds sets the quota percentages that raise alerts
func WithAlertThresholds(thresholds []float64) Option {
	return func(o *Orchestrator) {
		if len(thresholds) > 0 {
			o.alertThresholds = append([]float64(nil), thresholds...)
		}
	}
}

// WithAlertResetPercent sets the usage below which fired alerts are forgotten
func WithAlertResetPercent(p float64) Option {
	return func(o *Orchestrator) { o.alertResetPercent = p }
}

// WithUsageLogger records every completion attempt
func WithUsageLogger(u UsageLogger) Option {
	return func(o *Orchestrator) { o.usage = u }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator. Provider priority is the slice order and never changes.
func New(providers []agents.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		circuitThreshold:  DefaultCircuitThreshold,
		alertThresholds:   append([]float64(nil), DefaultAlertThresholds...),
		alertResetPercent: DefaultAlertResetPercent,
		logger:            logging.Discard(),
		recorder:          metrics.NoopRecorder{},
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	sort.Float64s(o.alertThresholds)

	for _, p := range providers {
		o.states = append(o.states, newProviderState(p))
	}
	return o
}

// OnQuotaAlert registers an additional alert sink
func (o *Orchestrator) OnQuotaAlert(fn AlertFunc) {
	o.alertMu.Lock()
	defer o.alertMu.Unlock()
	o.callbacks = append(o.callbacks, fn)
}

// Complete tries providers in priority order and returns the first success.
// Circuit-open, unconfigured and quota-exhausted providers are skipped.
// When nothing succeeds the error is an *AllProvidersFailedError.
func (o *Orchestrator) Complete(ctx context.Context, req agents.CompletionRequest) (*agents.CompletionResponse, error) {
	requestID := uuid.New().String()
	attempts := make([]ProviderAttempt, 0, len(o.states))

	for _, st := range o.states {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := st.provider.Name()
		if skip := o.skipReason(ctx, st); skip != nil {
			o.logger.WithFields(log.Fields{
				"provider":   name,
				"request_id": requestID,
				"reason":     skip.Error(),
			}).Debug("Skipping provider")
			o.recorder.ObserveSkip(name, skip.Error())
			attempts = append(attempts, ProviderAttempt{Provider: name, Skipped: true, Err: skip})
			continue
		}

		start := o.now()
		resp, err := st.provider.Complete(ctx, req)
		elapsed := o.now().Sub(start)

		if err != nil {
			errorCount := st.recordFailure(err)
			o.logger.WithFields(log.Fields{
				"provider":    name,
				"request_id":  requestID,
				"error":       err.Error(),
				"error_count": errorCount,
				"event":       "completion_failed",
			}).Warn("Provider completion failed")
			o.recorder.ObserveCompletion(name, "error", elapsed)
			o.logUsage(ctx, requestID, name, req, nil, elapsed, err)
			attempts = append(attempts, ProviderAttempt{Provider: name, Err: err})
			continue
		}

		st.recordSuccess()
		o.recorder.ObserveCompletion(name, "success", elapsed)
		o.logUsage(ctx, requestID, name, req, resp, elapsed, nil)
		o.evaluateAlerts(ctx, st)
		return resp, nil
	}

	o.logger.WithFields(log.Fields{
		"request_id": requestID,
		"attempts":   len(attempts),
		"event":      "all_providers_failed",
	}).Error("No provider could complete the request")

	return nil, &AllProvidersFailedError{Attempts: attempts}
}

// skipReason returns why a provider must not be invoked, or nil if it is routable
func (o *Orchestrator) skipReason(ctx context.Context, st *providerState) error {
	if !st.provider.Configured() {
		return ErrNotConfigured
	}
	if st.errorCount() > o.circuitThreshold {
		return ErrCircuitOpen
	}
	quota, err := st.provider.QuotaStatus(ctx)
	if err != nil || quota.Remaining <= 0 {
		return ErrQuotaExhausted
	}
	return nil
}

func (o *Orchestrator) logUsage(ctx context.Context, requestID, provider string, req agents.CompletionRequest, resp *agents.CompletionResponse, elapsed time.Duration, callErr error) {
	if o.usage == nil {
		return
	}

	entry := &models.UsageLog{
		RequestID: requestID,
		Timestamp: o.now(),
		Provider:  provider,
		Model:     req.Model,
		Endpoint:  req.Endpoint,
		LatencyMs: elapsed.Milliseconds(),
		Success:   callErr == nil,
	}
	if resp != nil {
		entry.Model = resp.Model
		entry.Tokens = resp.TotalTokens
	}
	if callErr != nil {
		msg := callErr.Error()
		entry.ErrorMessage = &msg
	}

	// The caller's cancellation must not drop the record
	if err := o.usage.CreateUsageLog(context.WithoutCancel(ctx), entry); err != nil {
		o.logger.WithFields(log.Fields{
			"provider": provider,
			"error":    err.Error(),
		}).Warn("Failed to record usage")
	}
}

// ProviderQuota pairs a provider with its quota in a status snapshot
type ProviderQuota struct {
	Provider string             `json:"provider"`
	Quota    agents.QuotaStatus `json:"quota"`
}

// StatusSnapshot is the read-only view served to dashboards and banners
type StatusSnapshot struct {
	Providers        []ProviderHealth `json:"providers"`
	Quotas           []ProviderQuota  `json:"quotas"`
	PrimaryAvailable bool             `json:"primaryAvailable"`
}

// Status snapshots health and quota for every provider.
// A provider whose quota cannot be read is reported as fully exhausted.
func (o *Orchestrator) Status(ctx context.Context) StatusSnapshot {
	snap := StatusSnapshot{
		Providers: make([]ProviderHealth, 0, len(o.states)),
		Quotas:    make([]ProviderQuota, 0, len(o.states)),
	}

	for i, st := range o.states {
		health := st.snapshot()
		snap.Providers = append(snap.Providers, health)
		if i == 0 {
			snap.PrimaryAvailable = health.Available
		}

		quota, err := st.provider.QuotaStatus(ctx)
		if err != nil {
			quota = agents.ExhaustedQuota(0, startOfNextDay(o.now()))
		}
		snap.Quotas = append(snap.Quotas, ProviderQuota{Provider: st.provider.Name(), Quota: quota})
	}

	return snap
}

// Quota returns the named provider's quota, or the primary's when name is empty
func (o *Orchestrator) Quota(ctx context.Context, name string) (agents.QuotaStatus, error) {
	if len(o.states) == 0 {
		return agents.QuotaStatus{}, fmt.Errorf("%w: no providers registered", ErrUnknownProvider)
	}
	if name == "" {
		return o.states[0].provider.QuotaStatus(ctx)
	}
	for _, st := range o.states {
		if st.provider.Name() == name {
			return st.provider.QuotaStatus(ctx)
		}
	}
	return agents.QuotaStatus{}, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
}

func startOfNextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
