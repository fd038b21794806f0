package exchange

import (
	"context"

	"github.com/weiawesome/wes-io-groupchat/pkg/log"
)

// NoopManager accepts every call and only logs it. For running without a broker.
type NoopManager struct{}

func NewNoopManager() *NoopManager {
	return &NoopManager{}
}

func (NoopManager) CreateBroadcastChannel(ctx context.Context, name string) error {
	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldGroup, name).Msg("noop broker: create broadcast channel")
	return nil
}

func (NoopManager) DestroyBroadcastChannel(ctx context.Context, name string) error {
	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldGroup, name).Msg("noop broker: destroy broadcast channel")
	return nil
}

func (NoopManager) Publish(ctx context.Context, name string, body []byte) error {
	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldGroup, name).Int("bytes", len(body)).Msg("noop broker: publish")
	return nil
}

func (NoopManager) Close() error {
	return nil
}
