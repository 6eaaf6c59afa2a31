package entity

import (
	"context"
	"fmt"

	"github.com/berfenger/haier2mqtt/internal/core/domain"
)

type Number struct {
	*base
}

func newNumber(b *base) *Number {
	if step := b.spec.ValueRange.Step; step != nil {
		min, max, inc := step.Min, step.Max, step.Step
		b.descriptor.Min, b.descriptor.Max, b.descriptor.Step = &min, &max, &inc
	}
	b.descriptor.Mode = domain.NUMBER_MODE_BOX
	if b.spec.Unit == domain.UNIT_PERCENTAGE {
		b.descriptor.Mode = domain.NUMBER_MODE_SLIDER
	}
	return &Number{base: b}
}

func (n *Number) Refresh(snapshot domain.Snapshot) {
	n.update(snapshot, n.compute)
}

func (n *Number) compute(snapshot domain.Snapshot) (map[string]any, error) {
	raw, err := required(snapshot, n.spec.Key)
	if err != nil {
		return nil, err
	}
	value, err := n.codec.Decode(n.spec, raw)
	if err != nil {
		return nil, err
	}
	return map[string]any{"value": value}, nil
}

func (n *Number) Apply(ctx context.Context, cmd Command) error {
	if cmd.Field != "value" {
		return fmt.Errorf("%w: %s", ErrUnknownField, cmd.Field)
	}
	v, err := floatPayload(cmd.Payload)
	if err != nil {
		return err
	}
	value, err := n.codec.Encode(n.spec, v)
	if err != nil {
		return err
	}
	return n.write(ctx, map[string]any{n.spec.Key: value}, n.compute)
}
