package entity

import (
	"context"
	"fmt"
	"math"

	"github.com/berfenger/haier2mqtt/internal/core/domain"
)

const (
	COVER_STATE_OPEN   = "open"
	COVER_STATE_CLOSED = "closed"

	COVER_COMMAND_OPEN  = "OPEN"
	COVER_COMMAND_CLOSE = "CLOSE"
	COVER_COMMAND_STOP  = "STOP"
)

type Cover struct {
	*base
}

func newCover(b *base) *Cover {
	if ext := b.spec.Composite; ext != nil {
		b.descriptor.Min, b.descriptor.Max, b.descriptor.Step = ext.Min, ext.Max, ext.Step
	}
	return &Cover{base: b}
}

func (c *Cover) Refresh(snapshot domain.Snapshot) {
	c.update(snapshot, c.compute)
}

func (c *Cover) compute(snapshot domain.Snapshot) (map[string]any, error) {
	position, err := snapshot.Float("openDegree")
	if err != nil {
		return nil, err
	}
	state := map[string]any{"position": int(math.Round(position))}
	raw, err := required(snapshot, "onOffStatus")
	if err != nil {
		return nil, err
	}
	on, err := readBool(raw)
	if err != nil {
		return nil, err
	}
	if on {
		state["state"] = COVER_STATE_OPEN
	} else {
		state["state"] = COVER_STATE_CLOSED
	}
	return state, nil
}

func (c *Cover) Apply(ctx context.Context, cmd Command) error {
	switch cmd.Field {
	case "state":
		switch cmd.Payload {
		case COVER_COMMAND_OPEN:
			return c.write(ctx, map[string]any{"onOffStatus": true}, c.compute)
		case COVER_COMMAND_CLOSE:
			return c.write(ctx, map[string]any{"onOffStatus": false}, c.compute)
		case COVER_COMMAND_STOP:
			return c.write(ctx, map[string]any{"pause": true}, c.compute)
		}
		return fmt.Errorf("%w: cover command %q", ErrUnsupportedMode, cmd.Payload)
	case "position":
		v, err := floatPayload(cmd.Payload)
		if err != nil {
			return err
		}
		return c.write(ctx, map[string]any{"openDegree": int(math.Round(v))}, c.compute)
	}
	return fmt.Errorf("%w: %s", ErrUnknownField, cmd.Field)
}
