package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/andrew/mentor-gateway/internal/agents"
)

// ProviderHealth is the health record kept for each provider
type ProviderHealth struct {
	Name        string        `json:"name"`
	Available   bool          `json:"available"`
	Configured  bool          `json:"configured"`
	Latency     time.Duration `json:"latency"`
	LastChecked time.Time     `json:"last_checked"`
	ErrorCount  int           `json:"error_count"`
	LastError   string        `json:"last_error,omitempty"`

	// AlertedThresholds lists the quota thresholds already fired today
	AlertedThresholds []float64 `json:"alerted_thresholds"`
}

type providerState struct {
	provider agents.Provider

	mu      sync.Mutex
	health  ProviderHealth
	alerted map[float64]bool
}

func newProviderState(p agents.Provider) *providerState {
	return &providerState{
		provider: p,
		health: ProviderHealth{
			Name:       p.Name(),
			Configured: p.Configured(),
		},
		alerted: make(map[float64]bool),
	}
}

func (s *providerState) snapshot() ProviderHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.health
	h.AlertedThresholds = make([]float64, 0, len(s.alerted))
	for t := range s.alerted {
		h.AlertedThresholds = append(h.AlertedThresholds, t)
	}
	sort.Float64s(h.AlertedThresholds)
	return h
}

func (s *providerState) errorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health.ErrorCount
}

func (s *providerState) recordFailure(err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health.ErrorCount++
	s.health.LastError = err.Error()
	return s.health.ErrorCount
}

func (s *providerState) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health.ErrorCount = 0
	s.health.LastError = ""
}

func (s *providerState) recordProbe(ok bool, latency time.Duration, at time.Time, probeErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health.Available = ok
	s.health.Configured = s.provider.Configured()
	s.health.Latency = latency
	s.health.LastChecked = at
	switch {
	case probeErr != nil:
		s.health.ErrorCount++
		s.health.LastError = probeErr.Error()
	case ok:
		s.health.ErrorCount = 0
		s.health.LastError = ""
	}
}

// StartHealthChecks runs one check cycle immediately and then one per interval.
// A non-positive interval uses DefaultHealthCheckInterval.
// Calling it while checks are running is a no-op.
func (o *Orchestrator) StartHealthChecks(ctx context.Context, interval time.Duration) {
	o.loopMu.Lock()
	defer o.loopMu.Unlock()

	if o.stopLoop != nil {
		return
	}

	if interval <= 0 {
		o.logger.WithField("interval", interval.String()).Warn("Invalid health check interval, using default")
		interval = DefaultHealthCheckInterval
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.stopLoop = cancel
	o.loopDone = done

	go o.runHealthLoop(loopCtx, interval, done)

	o.logger.WithField("interval", interval.String()).Info("Provider health checks started")
}

// StopHealthChecks cancels the check loop, including an in-flight cycle,
// and waits for it to exit. Calling it when stopped is a no-op.
func (o *Orchestrator) StopHealthChecks() {
	o.loopMu.Lock()
	defer o.loopMu.Unlock()

	if o.stopLoop == nil {
		return
	}

	o.stopLoop()
	<-o.loopDone
	o.stopLoop = nil
	o.loopDone = nil

	o.logger.Info("Provider health checks stopped")
}

func (o *Orchestrator) runHealthLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.CheckAllProviders(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			o.CheckAllProviders(ctx)
		}
	}
}

// CheckAllProviders probes every provider in priority order, then evaluates its quota alerts
func (o *Orchestrator) CheckAllProviders(ctx context.Context) {
	for _, st := range o.states {
		if ctx.Err() != nil {
			return
		}

		start := o.now()
		ok, probeErr := safeProbe(ctx, st.provider)
		latency := o.now().Sub(start)

		// A probe cut short by shutdown says nothing about the provider
		if ctx.Err() != nil {
			return
		}

		st.recordProbe(ok, latency, o.now(), probeErr)

		fields := log.Fields{
			"provider":   st.provider.Name(),
			"available":  ok,
			"latency_ms": latency.Milliseconds(),
		}
		if probeErr != nil {
			fields["error"] = probeErr.Error()
			o.logger.WithFields(fields).Warn("Provider health check failed")
		} else {
			o.logger.WithFields(fields).Debug("Provider health checked")
		}

		o.evaluateAlerts(ctx, st)
	}
}

// safeProbe converts a panicking probe into an error
func safeProbe(ctx context.Context, p agents.Provider) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return p.Probe(ctx), nil
}

// evaluateAlerts fires each threshold at most once per day and clears the
// fired set once usage drops below the reset percent.
func (o *Orchestrator) evaluateAlerts(ctx context.Context, st *providerState) {
	quota, err := st.provider.QuotaStatus(ctx)
	if err != nil {
		o.logger.WithFields(log.Fields{
			"provider": st.provider.Name(),
			"error":    err.Error(),
		}).Warn("Failed to read provider quota")
		return
	}

	name := st.provider.Name()
	pct := quota.PercentUsed
	o.recorder.ObserveQuota(name, pct)

	var fired []float64
	st.mu.Lock()
	if pct < o.alertResetPercent {
		clear(st.alerted)
	}
	for _, t := range o.alertThresholds {
		if pct >= t && !st.alerted[t] {
			st.alerted[t] = true
			fired = append(fired, t)
		}
	}
	st.mu.Unlock()

	for _, t := range fired {
		alert := QuotaAlert{Provider: name, PercentUsed: pct, Threshold: t, At: o.now()}
		o.logger.WithFields(log.Fields{
			"provider":     name,
			"threshold":    t,
			"percent_used": pct,
			"event":        "quota_alert",
		}).Warn("Provider quota threshold crossed")
		o.recorder.ObserveAlert(name, t)
		o.dispatchAlert(alert)
	}
}

func (o *Orchestrator) dispatchAlert(alert QuotaAlert) {
	o.alertMu.RLock()
	callbacks := append([]AlertFunc(nil), o.callbacks...)
	o.alertMu.RUnlock()

	for _, fn := range callbacks {
		o.safeCallback(fn, alert)
	}
}

// safeCallback keeps a failing sink from aborting the cycle for the remaining providers
func (o *Orchestrator) safeCallback(fn AlertFunc, alert QuotaAlert) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.WithFields(log.Fields{
				"provider":  alert.Provider,
				"threshold": alert.Threshold,
				"panic":     fmt.Sprint(r),
			}).Error("Quota alert callback panicked")
		}
	}()
	fn(alert)
}
