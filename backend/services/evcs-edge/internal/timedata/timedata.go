// Package timedata stores and queries historical channel values.
package timedata

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"evcsedge/backend/services/evcs-edge/internal/evcs"
	"evcsedge/backend/services/evcs-edge/internal/metrics"
)

// Store is a historical channel store.
type Store interface {
	LatestValue(ctx context.Context, addr evcs.ChannelAddress) (any, bool, error)
	Record(ctx context.Context, addr evcs.ChannelAddress, value float64, at time.Time) error
}

// RetryPolicy bounds the attempts of one store operation.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// DefaultRetryPolicy is used when a store is built with a zero policy.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	MaxRetries:      3,
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultRetryPolicy.MaxInterval
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	p = p.withDefaults()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, p.MaxRetries), ctx)
}

type lookup struct {
	value any
	ok    bool
}

func retryLookup(ctx context.Context, policy RetryPolicy, op func() (any, bool, error)) (any, bool, error) {
	res, err := backoff.RetryWithData(func() (lookup, error) {
		v, ok, err := op()
		return lookup{value: v, ok: ok}, err
	}, policy.backOff(ctx))
	if err != nil {
		return nil, false, err
	}
	return res.value, res.ok, nil
}

func retryWrite(ctx context.Context, policy RetryPolicy, op func() error) error {
	err := backoff.Retry(op, policy.backOff(ctx))
	if err != nil {
		metrics.IncTimedataWrite(metrics.ResultError)
		return err
	}
	metrics.IncTimedataWrite(metrics.ResultSuccess)
	return nil
}
