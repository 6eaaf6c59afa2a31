package entity

import (
	"context"
	"fmt"

	"github.com/berfenger/haier2mqtt/internal/core/domain"
)

type Select struct {
	*base
}

func newSelect(b *base) *Select {
	if b.spec.Comparison != nil {
		b.descriptor.Options = b.spec.Comparison.Labels()
	}
	return &Select{base: b}
}

func (s *Select) Refresh(snapshot domain.Snapshot) {
	s.update(snapshot, s.compute)
}

func (s *Select) compute(snapshot domain.Snapshot) (map[string]any, error) {
	raw, err := required(snapshot, s.spec.Key)
	if err != nil {
		return nil, err
	}
	option, err := s.codec.Decode(s.spec, raw)
	if err != nil {
		return nil, err
	}
	return map[string]any{"option": option}, nil
}

func (s *Select) Apply(ctx context.Context, cmd Command) error {
	if cmd.Field != "option" {
		return fmt.Errorf("%w: %s", ErrUnknownField, cmd.Field)
	}
	code, err := s.codec.Encode(s.spec, cmd.Payload)
	if err != nil {
		return err
	}
	return s.write(ctx, map[string]any{s.spec.Key: code}, s.compute)
}
