package ai

import "context"

// Adapter is the capability set every backend family implements. One adapter
// serves one configured provider; the registry builds and caches instances
// from immutable snapshots, so an adapter is never mutated after construction
// apart from its in-flight cancellation state.
type Adapter interface {
	// FetchModels lists the models the backend currently offers. Network and
	// auth failures surface as typed *Error values.
	FetchModels(ctx context.Context) ([]ModelDescriptor, error)

	// SendMessage sends a completion request and returns a cancellable stream
	// of events. Pre-flight failures (bad config, connect error, non-2xx
	// response) are returned synchronously; everything after the stream is
	// open arrives as events, ending with a terminal done or error event.
	SendMessage(ctx context.Context, request ChatRequest) (*ChatStream, error)

	// ValidateCredentials issues one minimal authenticated request. A 401 from
	// the backend means the credentials are wrong, which is a false result,
	// not an error; errors are reserved for not being able to tell.
	ValidateCredentials(ctx context.Context) (bool, error)

	// Cancel aborts the in-flight request, if any. It is idempotent, safe
	// from any goroutine, and causes the consuming stream to terminate with
	// a cancelled error event.
	Cancel()
}
