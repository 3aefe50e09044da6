package client

import (
	"context"
	"time"

	"guide-rpc/rpcerr"
)

// RetryPolicy retries calls that could not reach a provider, with exponential backoff.
// The zero value never retries.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// retryable reports whether err may succeed on another attempt. Only connection failures
// qualify: the request never reached a provider, so retrying cannot run it twice.
func retryable(err error) bool {
	return rpcerr.Is(err, rpcerr.ConnectionFailure)
}

func (p RetryPolicy) do(ctx context.Context, call func(attempt int) error) error {
	err := call(0)
	for i := 0; i < p.MaxRetries && err != nil && retryable(err); i++ {
		select {
		case <-ctx.Done():
			return err
		case <-time.After(p.BaseDelay * time.Duration(1<<i)):
		}
		err = call(i + 1)
	}
	return err
}
