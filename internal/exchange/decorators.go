package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/weiawesome/wes-io-groupchat/pkg/log"
)

type timeoutManager struct {
	Manager
	timeout time.Duration
}

// WithTimeout bounds every broker call by d.
func WithTimeout(m Manager, d time.Duration) Manager {
	return &timeoutManager{Manager: m, timeout: d}
}

func (t *timeoutManager) bound(ctx context.Context, op, name string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrBrokerUnavailable) {
		return unavailable(op, name, err)
	}
	return err
}

func (t *timeoutManager) CreateBroadcastChannel(ctx context.Context, name string) error {
	return t.bound(ctx, "create", name, func(ctx context.Context) error {
		return t.Manager.CreateBroadcastChannel(ctx, name)
	})
}

func (t *timeoutManager) DestroyBroadcastChannel(ctx context.Context, name string) error {
	return t.bound(ctx, "destroy", name, func(ctx context.Context) error {
		return t.Manager.DestroyBroadcastChannel(ctx, name)
	})
}

func (t *timeoutManager) Publish(ctx context.Context, name string, body []byte) error {
	return t.bound(ctx, "publish", name, func(ctx context.Context) error {
		return t.Manager.Publish(ctx, name, body)
	})
}

// Retrying retries Publish with exponential backoff. Channel creation and
// deletion fail the request on the first error.
type Retrying struct {
	Manager
	maxRetries      uint64
	initialInterval time.Duration
}

func NewRetrying(m Manager, maxRetries int) *Retrying {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{Manager: m, maxRetries: uint64(maxRetries), initialInterval: 100 * time.Millisecond}
}

func (r *Retrying) Publish(ctx context.Context, name string, body []byte) error {
	l := log.Ctx(ctx)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.initialInterval
	eb.MaxInterval = 2 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(eb, r.maxRetries), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return r.Manager.Publish(ctx, name, body)
	}, b, func(err error, wait time.Duration) {
		l.Warn().Err(err).Str(log.FieldRoom, name).Int("attempt", attempt).Dur("retry_in", wait).Msg("publish failed, retrying")
	})
	if err != nil {
		return fmt.Errorf("publish to %q failed after %d attempts: %w", name, attempt, err)
	}
	return nil
}
