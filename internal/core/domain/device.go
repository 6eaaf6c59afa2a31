package domain

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"sync"
)

var ErrNoCommandWriter = errors.New("device has no command writer")

type DeviceInfo struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	ProductCode string `json:"product_code"`
	ProductName string `json:"product_name"`
	WifiType    string `json:"wifi_type"`
	Virtual     bool   `json:"virtual"`
}

// Snapshot holds the last known raw value of each attribute. A published
// snapshot is never mutated.
type Snapshot map[string]string

func (s Snapshot) Get(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

func (s Snapshot) Has(key string) bool {
	_, ok := s[key]
	return ok
}

func (s Snapshot) Float(key string) (float64, error) {
	v, ok := s[key]
	if !ok {
		return 0, fmt.Errorf("attribute %s not present", key)
	}
	return strconv.ParseFloat(v, 64)
}

// CommandWriter delivers attribute writes to the cloud.
type CommandWriter interface {
	SendCommand(ctx context.Context, deviceId string, attributes map[string]any) error
}

type DeviceModel struct {
	Info       DeviceInfo
	attributes []AttributeSpec

	applyMu sync.Mutex

	mu        sync.RWMutex
	snapshot  Snapshot
	observers map[int]func(Snapshot)
	nextId    int
	writer    CommandWriter
}

func NewDeviceModel(info DeviceInfo, attributes []AttributeSpec, initial map[string]string) *DeviceModel {
	snapshot := make(Snapshot, len(initial))
	maps.Copy(snapshot, initial)
	return &DeviceModel{
		Info:       info,
		attributes: attributes,
		snapshot:   snapshot,
		observers:  map[int]func(Snapshot){},
	}
}

func (d *DeviceModel) Id() string {
	return d.Info.Id
}

func (d *DeviceModel) Attributes() []AttributeSpec {
	return append([]AttributeSpec(nil), d.attributes...)
}

func (d *DeviceModel) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}

// ApplyDelta merges one batch of attribute values into the snapshot and then
// notifies every observer with the resulting snapshot. All keys of the batch
// become visible at once.
func (d *DeviceModel) ApplyDelta(values map[string]string) {
	if len(values) == 0 {
		return
	}
	d.applyMu.Lock()
	defer d.applyMu.Unlock()

	d.mu.Lock()
	next := make(Snapshot, len(d.snapshot)+len(values))
	maps.Copy(next, d.snapshot)
	maps.Copy(next, values)
	d.snapshot = next
	observers := make([]func(Snapshot), 0, len(d.observers))
	for i := 0; i < d.nextId; i++ {
		if fn, ok := d.observers[i]; ok {
			observers = append(observers, fn)
		}
	}
	d.mu.Unlock()

	for _, fn := range observers {
		fn(next)
	}
}

// Observe registers fn for snapshot changes and returns a function that removes it.
func (d *DeviceModel) Observe(fn func(Snapshot)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextId
	d.nextId++
	d.observers[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.observers, id)
	}
}

func (d *DeviceModel) SetWriter(writer CommandWriter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writer = writer
}

func (d *DeviceModel) WriteAttributes(ctx context.Context, attributes map[string]any) error {
	d.mu.RLock()
	writer := d.writer
	d.mu.RUnlock()
	if writer == nil {
		return ErrNoCommandWriter
	}
	return writer.SendCommand(ctx, d.Info.Id, attributes)
}

const STORE_PREFIX_DEVICE = "device:"

// DeviceRecord is the persisted dump of one loaded device.
type DeviceRecord struct {
	Device     DeviceInfo      `json:"device"`
	Attributes []AttributeSpec `json:"attributes"`
}

func DeviceStoreKey(deviceId string) string {
	return STORE_PREFIX_DEVICE + deviceId
}
