package domain

import "context"

// FeeSource fetches raw fee data from one upstream oracle and returns it
// normalized. Implementations own their provider-specific response shapes
// and must never return a partially populated snapshot.
type FeeSource interface {
	// Name identifies the provider in snapshots, logs, and status output.
	Name() string
	// FetchFees performs one upstream round-trip. Errors are
	// ErrMalformedUpstreamData for unusable bodies and transport or
	// status failures otherwise.
	FetchFees(ctx context.Context) (FeeSnapshot, error)
}

// FeeBus fans fee-update events out beyond the local process so serving
// instances can share one poller's refreshes.
type FeeBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
