package bus

import (
	"context"

	"github.com/avorobev/peertalk/internal/core"
)

// NoopBus serves single-process deployments: there is no other gateway to
// reach, so publishing is a silent no-op.
type NoopBus struct{}

func NewNoopBus() NoopBus { return NoopBus{} }

func (NoopBus) Publish(context.Context, string, core.Frame) error { return nil }

func (NoopBus) PublishBroadcast(context.Context, core.Frame) error { return nil }

func (NoopBus) Subscribe(context.Context, string, func(core.Frame)) error { return nil }

func (NoopBus) Close() error { return nil }

var _ core.EnvelopeBus = NoopBus{}
