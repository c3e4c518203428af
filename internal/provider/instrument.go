package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mrz1836/estatelink/internal/metrics"
)

// instrumented decorates a Provider with per-call metrics.
type instrumented struct {
	next    Provider
	metrics *metrics.Metrics
}

// Instrument wraps p so every call is timed and counted in m.
func Instrument(p Provider, m *metrics.Metrics) Provider {
	if m == nil {
		return p
	}
	return &instrumented{next: p, metrics: m}
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) Connect(ctx context.Context) (*Addresses, error) {
	start := time.Now()
	addrs, err := i.next.Connect(ctx)
	i.metrics.RecordProviderCall(i.next.Name(), "connect", time.Since(start), err)
	return addrs, err
}

func (i *instrumented) Disconnect(ctx context.Context) error {
	start := time.Now()
	err := i.next.Disconnect(ctx)
	i.metrics.RecordProviderCall(i.next.Name(), "disconnect", time.Since(start), err)
	return err
}

func (i *instrumented) IsConnected(ctx context.Context) bool {
	return i.next.IsConnected(ctx)
}

func (i *instrumented) LocalStorage(ctx context.Context) (*Addresses, error) {
	start := time.Now()
	addrs, err := i.next.LocalStorage(ctx)
	i.metrics.RecordProviderCall(i.next.Name(), "local_storage", time.Since(start), err)
	return addrs, err
}

func (i *instrumented) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	start := time.Now()
	raw, err := i.next.Request(ctx, method, params)
	i.metrics.RecordProviderCall(i.next.Name(), method, time.Since(start), err)
	return raw, err
}
