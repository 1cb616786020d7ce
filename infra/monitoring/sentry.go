package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/resqroute/config"
	coremon "github.com/kilianp07/resqroute/core/monitoring"
)

// NewSentryMonitor returns a Sentry backed Monitor, or a no-op one when no
// DSN is configured.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		ServerName:       cfg.ServerName,
		TracesSampleRate: cfg.TracesSampleRate,
		BeforeSend:       dropCancellation,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry client: %w", err)
	}
	scope := sentry.NewScope()
	scope.SetTag("service", "resqroute")
	return &sentryMonitor{hub: sentry.NewHub(client, scope)}, nil
}

// dropCancellation discards shutdown noise: a cancelled context is not a fault.
func dropCancellation(ev *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if hint == nil || hint.OriginalException == nil {
		return ev
	}
	if errors.Is(hint.OriginalException, context.Canceled) {
		return nil
	}
	return ev
}

type sentryMonitor struct {
	hub *sentry.Hub
}

func (s *sentryMonitor) withTags(tags map[string]string) *sentry.Hub {
	h := s.hub.Clone()
	for k, v := range tags {
		h.Scope().SetTag(k, v)
	}
	return h
}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.withTags(tags).CaptureException(err)
}

// CapturePanic reports a recovered value without re-panicking; the caller
// decides whether to keep running.
func (s *sentryMonitor) CapturePanic(r any, tags map[string]string) {
	if r == nil {
		return
	}
	h := s.withTags(tags)
	if err, ok := r.(error); ok {
		h.Recover(err)
		return
	}
	h.Recover(fmt.Sprint(r))
}

func (s *sentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }
