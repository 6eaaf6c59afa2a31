package entity

import (
	"context"

	"github.com/berfenger/haier2mqtt/internal/core/domain"
)

type Sensor struct {
	*base
}

func newSensor(b *base) *Sensor {
	if b.spec.Comparison != nil {
		b.descriptor.Options = b.spec.Comparison.Labels()
	}
	return &Sensor{base: b}
}

func (s *Sensor) Refresh(snapshot domain.Snapshot) {
	s.update(snapshot, s.compute)
}

func (s *Sensor) compute(snapshot domain.Snapshot) (map[string]any, error) {
	raw, err := required(snapshot, s.spec.Key)
	if err != nil {
		return nil, err
	}
	value, err := s.codec.Decode(s.spec, raw)
	if err != nil {
		return nil, err
	}
	return map[string]any{"value": value}, nil
}

func (s *Sensor) Apply(_ context.Context, _ Command) error {
	return ErrReadOnly
}
