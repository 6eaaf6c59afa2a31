package entity

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"sync"

	"github.com/berfenger/haier2mqtt/internal/core/domain"
	"github.com/berfenger/haier2mqtt/internal/core/service"

	"go.uber.org/zap"
)

const (
	STATE_ON  = "ON"
	STATE_OFF = "OFF"
)

var (
	ErrReadOnly        = errors.New("entity is read-only")
	ErrUnknownField    = errors.New("unknown command field")
	ErrUnsupportedMode = errors.New("unsupported mode")
)

// Command is a user request to change one field of an entity.
type Command struct {
	Field   string
	Payload string
}

type Entity interface {
	Descriptor() domain.EntityDescriptor
	UniqueId() string
	// Refresh recomputes the displayed state from a device snapshot.
	Refresh(snapshot domain.Snapshot)
	State() domain.EntityStateEvent
	Apply(ctx context.Context, cmd Command) error
}

type computeFunc func(snapshot domain.Snapshot) (map[string]any, error)

type base struct {
	descriptor domain.EntityDescriptor
	spec       domain.AttributeSpec
	device     *domain.DeviceModel
	codec      *service.ValueCodec
	logger     *zap.Logger

	mu        sync.Mutex
	snapshot  domain.Snapshot
	state     map[string]any
	available bool
}

func newBase(device *domain.DeviceModel, spec domain.AttributeSpec, viaDevice string,
	codec *service.ValueCodec, logger *zap.Logger) *base {

	descriptor := domain.EntityDescriptor{
		Device:      domain.ApplianceDevice(device.Info, viaDevice),
		Component:   spec.Category,
		DeviceId:    device.Id(),
		Key:         spec.Key,
		Name:        spec.DisplayName,
		UniqueId:    domain.EntityUniqueId(device.Id(), spec.Key),
		DeviceClass: spec.DeviceClass,
		Unit:        spec.Unit,
		StateClass:  spec.StateClass,
	}
	return &base{
		descriptor: descriptor,
		spec:       spec,
		device:     device,
		codec:      codec,
		logger:     logger.With(zap.String("entity", descriptor.UniqueId)),
		state:      map[string]any{},
	}
}

func (b *base) Descriptor() domain.EntityDescriptor {
	return b.descriptor
}

func (b *base) UniqueId() string {
	return b.descriptor.UniqueId
}

func (b *base) State() domain.EntityStateEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.EntityStateEvent{
		StateUpdateEventMixIn: domain.StateUpdateEventMixIn{Id: b.descriptor.UniqueId},
		Component:             b.descriptor.Component,
		State:                 maps.Clone(b.state),
		Available:             b.available,
	}
}

// update computes the state from a snapshot. A failed computation keeps the
// last good state and marks the entity unavailable.
func (b *base) update(snapshot domain.Snapshot, compute computeFunc) {
	state, err := compute(snapshot)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked(snapshot, state, err)
}

func (b *base) setLocked(snapshot domain.Snapshot, state map[string]any, err error) {
	b.snapshot = snapshot
	if err != nil {
		b.logger.Warn("entity: read value failed", zap.Error(err))
		b.available = false
		return
	}
	b.state = state
	b.available = true
}

func (b *base) lastSnapshot() domain.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot
}

// write sends attributes to the device and, once accepted, shows them locally
// until the next delta arrives. The written values are laid over the snapshot
// recorded at that moment, so a delta applied meanwhile is never rolled back.
func (b *base) write(ctx context.Context, attributes map[string]any, compute computeFunc) error {
	if err := b.device.WriteAttributes(ctx, attributes); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	next := overlay(b.snapshot, attributes)
	state, err := compute(next)
	b.setLocked(next, state, err)
	return nil
}

func overlay(snapshot domain.Snapshot, attributes map[string]any) domain.Snapshot {
	next := make(domain.Snapshot, len(snapshot)+len(attributes))
	maps.Copy(next, snapshot)
	for k, v := range attributes {
		next[k] = wireString(v)
	}
	return next
}

func wireString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	}
	return fmt.Sprint(v)
}

func required(snapshot domain.Snapshot, key string) (string, error) {
	v, ok := snapshot.Get(key)
	if !ok {
		return "", fmt.Errorf("attribute %s not present", key)
	}
	return v, nil
}

func intValue(snapshot domain.Snapshot, key, fallback string) (int, error) {
	v, ok := snapshot.Get(key)
	if !ok {
		v = fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: %w", key, err)
	}
	return int(f), nil
}

func readBool(raw string) (bool, error) {
	return service.TryReadAsBool(raw)
}

func onOffPayload(payload string) (bool, error) {
	switch payload {
	case STATE_ON:
		return true, nil
	case STATE_OFF:
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not %s or %s", service.ErrInvalidValue, payload, STATE_ON, STATE_OFF)
}

func onOffState(on bool) string {
	if on {
		return STATE_ON
	}
	return STATE_OFF
}

func floatPayload(payload string) (float64, error) {
	v, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", service.ErrInvalidValue, payload)
	}
	return v, nil
}

// Build creates one entity per attribute spec of the device.
func Build(device *domain.DeviceModel, viaDevice string, codec *service.ValueCodec, logger *zap.Logger) []Entity {
	var entities []Entity
	for _, spec := range device.Attributes() {
		b := newBase(device, spec, viaDevice, codec, logger)
		switch spec.Category {
		case domain.CATEGORY_SENSOR:
			entities = append(entities, newSensor(b))
		case domain.CATEGORY_BINARY_SENSOR:
			entities = append(entities, newBinarySensor(b))
		case domain.CATEGORY_NUMBER:
			entities = append(entities, newNumber(b))
		case domain.CATEGORY_SELECT:
			entities = append(entities, newSelect(b))
		case domain.CATEGORY_SWITCH:
			entities = append(entities, newSwitch(b))
		case domain.CATEGORY_CLIMATE:
			entities = append(entities, newClimate(b))
		case domain.CATEGORY_WATER_HEATER:
			entities = append(entities, newWaterHeater(b))
		case domain.CATEGORY_COVER:
			entities = append(entities, newCover(b))
		default:
			logger.Warn("entity: unsupported category", zap.String("device", device.Id()),
				zap.String("attribute", spec.Key), zap.String("category", spec.Category))
		}
	}
	return entities
}

// Bind refreshes the entities on every snapshot change of their device and
// hands each resulting state to publish. The current snapshot is published
// right away. The returned function cancels the binding.
func Bind(device *domain.DeviceModel, entities []Entity, publish func(domain.EntityStateEvent)) func() {
	refresh := func(snapshot domain.Snapshot) {
		for _, e := range entities {
			e.Refresh(snapshot)
			publish(e.State())
		}
	}
	cancel := device.Observe(refresh)
	refresh(device.Snapshot())
	return cancel
}
