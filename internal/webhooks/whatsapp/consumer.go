package whatsapp

import (
	"context"
	"fmt"

	"github.com/angelmondragon/wabaledger/internal/ingress"
	"github.com/angelmondragon/wabaledger/pkg/logger"
)

type envelopeSource interface {
	Dequeue(ctx context.Context) (ingress.Envelope, error)
}

type envelopeDispatcher interface {
	Dispatch(ctx context.Context, env ingress.Envelope) error
}

// Consumer is the single reader of the ingress queue. Envelopes are handled
// one at a time in arrival order.
type Consumer struct {
	source     envelopeSource
	dispatcher envelopeDispatcher
	logg       *logger.Logger
}

func NewConsumer(source envelopeSource, dispatcher envelopeDispatcher, logg *logger.Logger) (*Consumer, error) {
	if source == nil {
		return nil, fmt.Errorf("envelope source required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{source: source, dispatcher: dispatcher, logg: logg}, nil
}

// Run drains the queue until ctx is canceled. An envelope already taken off
// the queue is finished before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	c.logg.Info(ctx, "whatsapp consumer started")
	for {
		env, err := c.source.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logg.Info(ctx, "whatsapp consumer stopped")
				return nil
			}
			return fmt.Errorf("dequeue envelope: %w", err)
		}
		c.process(context.WithoutCancel(ctx), env)
	}
}

func (c *Consumer) process(ctx context.Context, env ingress.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logg.Error(c.logg.WithField(ctx, "envelope_id", env.ID), "whatsapp envelope panicked", fmt.Errorf("panic: %v", rec))
		}
	}()
	if err := c.dispatcher.Dispatch(ctx, env); err != nil {
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
			"envelope_id": env.ID,
			"error":       err.Error(),
		}), "whatsapp envelope processed with failures")
	}
}
