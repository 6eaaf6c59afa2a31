package entity

import (
	"context"

	"github.com/berfenger/haier2mqtt/internal/core/domain"
)

type BinarySensor struct {
	*base
}

func newBinarySensor(b *base) *BinarySensor {
	return &BinarySensor{base: b}
}

func (s *BinarySensor) Refresh(snapshot domain.Snapshot) {
	s.update(snapshot, s.compute)
}

func (s *BinarySensor) compute(snapshot domain.Snapshot) (map[string]any, error) {
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

func (s *BinarySensor) Apply(_ context.Context, _ Command) error {
	return ErrReadOnly
}
