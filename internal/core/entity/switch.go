package entity

import (
	"context"
	"fmt"

	"github.com/berfenger/haier2mqtt/internal/core/domain"
)

type Switch struct {
	*base
}

func newSwitch(b *base) *Switch {
	return &Switch{base: b}
}

func (s *Switch) Refresh(snapshot domain.Snapshot) {
	s.update(snapshot, s.compute)
}

func (s *Switch) compute(snapshot domain.Snapshot) (map[string]any, error) {
	raw, err := required(snapshot, s.spec.Key)
	if err != nil {
		return nil, err
	}
	value, err := s.codec.Decode(s.spec, raw)
	if err != nil {
		return nil, err
	}
	return map[string]any{"state": onOffState(value.(bool))}, nil
}

func (s *Switch) Apply(ctx context.Context, cmd Command) error {
	if cmd.Field != "state" {
		return fmt.Errorf("%w: %s", ErrUnknownField, cmd.Field)
	}
	on, err := onOffPayload(cmd.Payload)
	if err != nil {
		return err
	}
	value, err := s.codec.Encode(s.spec, on)
	if err != nil {
		return err
	}
	return s.write(ctx, map[string]any{s.spec.Key: value}, s.compute)
}
