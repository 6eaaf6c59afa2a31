package entity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/berfenger/haier2mqtt/internal/core/domain"
	"github.com/berfenger/haier2mqtt/internal/core/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWriter struct {
	mu     sync.Mutex
	writes []map[string]any
	err    error
}

func (w *recordingWriter) SendCommand(_ context.Context, _ string, attributes map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.writes = append(w.writes, attributes)
	return nil
}

func (w *recordingWriter) Writes() []map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]map[string]any(nil), w.writes...)
}

func ptr(v float64) *float64 {
	return &v
}

func testDevice(specs []domain.AttributeSpec, initial map[string]string) (*domain.DeviceModel, *recordingWriter) {
	device := domain.NewDeviceModel(domain.DeviceInfo{Id: "DC330D0000AA", Name: "Heater", ProductName: "JSQ25"}, specs, initial)
	writer := &recordingWriter{}
	device.SetWriter(writer)
	return device, writer
}

func testCodec() *service.ValueCodec {
	return service.NewValueCodec(zap.NewNop())
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func build(device *domain.DeviceModel) map[string]Entity {
	entities := map[string]Entity{}
	for _, e := range Build(device, "haier_bridge_x", testCodec(), testLogger()) {
		entities[e.Descriptor().Key] = e
	}
	return entities
}

func switchSpec() domain.AttributeSpec {
	return domain.AttributeSpec{
		Key: "onOffStatus", DisplayName: "开关", Category: domain.CATEGORY_SWITCH, Writable: true,
		ValueRange: domain.ListValueRange([]domain.ListOption{{Code: "false", Label: "关"}, {Code: "true", Label: "开"}}),
	}
}

func TestSwitchRefreshAndApply(t *testing.T) {

	require := require.New(t)

	device, writer := testDevice([]domain.AttributeSpec{switchSpec()}, map[string]string{"onOffStatus": "false"})
	sw := build(device)["onOffStatus"]
	require.Equal("haier_dc330d0000aa_onoffstatus", sw.UniqueId())

	sw.Refresh(device.Snapshot())
	state := sw.State()
	require.True(state.Available)
	require.Equal(STATE_OFF, state.State["state"])

	require.NoError(sw.Apply(context.Background(), Command{Field: "state", Payload: STATE_ON}))
	require.Equal([]map[string]any{{"onOffStatus": true}}, writer.Writes())
	require.Equal(STATE_ON, sw.State().State["state"])

	// device snapshot is only changed by deltas
	require.Equal("false", device.Snapshot()["onOffStatus"])

	require.ErrorIs(sw.Apply(context.Background(), Command{Field: "state", Payload: "maybe"}), service.ErrInvalidValue)
	require.ErrorIs(sw.Apply(context.Background(), Command{Field: "brightness", Payload: "1"}), ErrUnknownField)
}

func TestSwitchDecodeFailureMarksUnavailable(t *testing.T) {

	require := require.New(t)

	device, _ := testDevice([]domain.AttributeSpec{switchSpec()}, map[string]string{"onOffStatus": "1"})
	sw := build(device)["onOffStatus"]
	sw.Refresh(device.Snapshot())
	require.False(sw.State().Available)

	device.ApplyDelta(map[string]string{"onOffStatus": "true"})
	sw.Refresh(device.Snapshot())
	require.True(sw.State().Available)
}

func TestFailedWriteKeepsState(t *testing.T) {

	require := require.New(t)

	device, writer := testDevice([]domain.AttributeSpec{switchSpec()}, map[string]string{"onOffStatus": "false"})
	writer.err = errors.New("not connected")
	sw := build(device)["onOffStatus"]
	sw.Refresh(device.Snapshot())

	require.Error(sw.Apply(context.Background(), Command{Field: "state", Payload: STATE_ON}))
	require.Equal(STATE_OFF, sw.State().State["state"])
}

func TestWriteWithoutWriter(t *testing.T) {

	require := require.New(t)

	device := domain.NewDeviceModel(domain.DeviceInfo{Id: "a"}, []domain.AttributeSpec{switchSpec()},
		map[string]string{"onOffStatus": "false"})
	sw := build(device)["onOffStatus"]
	require.ErrorIs(sw.Apply(context.Background(), Command{Field: "state", Payload: STATE_ON}), domain.ErrNoCommandWriter)
}

func TestSensorsAreReadOnly(t *testing.T) {

	require := require.New(t)

	options := []domain.ListOption{{Code: "0", Label: "待机"}, {Code: "1", Label: "运行"}}
	device, _ := testDevice([]domain.AttributeSpec{
		{Key: "outWaterTemp", DisplayName: "出水温度", Category: domain.CATEGORY_SENSOR,
			DeviceClass: domain.DEVICE_CLASS_TEMPERATURE, Unit: domain.UNIT_CELSIUS},
		{Key: "workStatus", DisplayName: "工作状态", Category: domain.CATEGORY_SENSOR, DeviceClass: domain.DEVICE_CLASS_ENUM,
			ValueRange: domain.ListValueRange(options), Comparison: domain.NewComparisonTable(options)},
		{Key: "heating", DisplayName: "加热", Category: domain.CATEGORY_BINARY_SENSOR},
	}, map[string]string{"outWaterTemp": "38", "workStatus": "1", "heating": "true"})
	entities := build(device)

	for _, e := range entities {
		e.Refresh(device.Snapshot())
		require.True(e.State().Available)
		require.ErrorIs(e.Apply(context.Background(), Command{Field: "value", Payload: "1"}), ErrReadOnly)
	}
	require.Equal(38.0, entities["outWaterTemp"].State().State["value"])
	require.Equal("运行", entities["workStatus"].State().State["value"])
	require.Equal([]string{"待机", "运行"}, entities["workStatus"].Descriptor().Options)
	require.Equal(STATE_ON, entities["heating"].State().State["state"])
}

func TestMissingAttributeIsUnavailable(t *testing.T) {

	require := require.New(t)

	device, _ := testDevice([]domain.AttributeSpec{
		{Key: "outWaterTemp", Category: domain.CATEGORY_SENSOR},
	}, nil)
	e := build(device)["outWaterTemp"]
	e.Refresh(device.Snapshot())
	require.False(e.State().Available)
}

func TestNumberAndSelect(t *testing.T) {

	require := require.New(t)

	options := []domain.ListOption{{Code: "1", Label: "High"}, {Code: "2", Label: "Medium"}, {Code: "3", Label: "Low"}}
	device, writer := testDevice([]domain.AttributeSpec{
		{Key: "targetTemp", DisplayName: "目标温度", Category: domain.CATEGORY_NUMBER, Writable: true,
			ValueRange: domain.StepValueRange(domain.StepRange{Min: 35, Max: 65, Step: 1, DataType: "Integer"})},
		{Key: "windSpeed", DisplayName: "风速", Category: domain.CATEGORY_SELECT, Writable: true,
			ValueRange: domain.ListValueRange(options), Comparison: domain.NewComparisonTable(options)},
	}, map[string]string{"targetTemp": "40", "windSpeed": "2"})
	entities := build(device)
	number, sel := entities["targetTemp"], entities["windSpeed"]
	number.Refresh(device.Snapshot())
	sel.Refresh(device.Snapshot())

	require.Equal(40.0, number.State().State["value"])
	require.Equal(35.0, *number.Descriptor().Min)
	require.Equal(65.0, *number.Descriptor().Max)
	require.Equal(domain.NUMBER_MODE_BOX, number.Descriptor().Mode)
	require.Equal("Medium", sel.State().State["option"])

	require.NoError(number.Apply(context.Background(), Command{Field: "value", Payload: "45"}))
	require.Equal(45.0, number.State().State["value"])

	require.NoError(sel.Apply(context.Background(), Command{Field: "option", Payload: "Low"}))
	require.Equal("Low", sel.State().State["option"])
	require.ErrorIs(sel.Apply(context.Background(), Command{Field: "option", Payload: "Turbo"}), service.ErrInvalidValue)

	require.Equal([]map[string]any{{"targetTemp": 45.0}, {"windSpeed": "3"}}, writer.Writes())
}

func TestBindPublishesOnDelta(t *testing.T) {

	assert := assert.New(t)

	device, _ := testDevice([]domain.AttributeSpec{switchSpec()}, map[string]string{"onOffStatus": "false"})
	entities := Build(device, "bridge", testCodec(), testLogger())

	var mu sync.Mutex
	var published []domain.EntityStateEvent
	cancel := Bind(device, entities, func(e domain.EntityStateEvent) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, e)
	})

	device.ApplyDelta(map[string]string{"onOffStatus": "true"})
	cancel()
	device.ApplyDelta(map[string]string{"onOffStatus": "false"})

	mu.Lock()
	defer mu.Unlock()
	assert.Len(published, 2)
	assert.Equal(STATE_OFF, published[0].State["state"])
	assert.Equal(STATE_ON, published[1].State["state"])
	assert.Equal(domain.CATEGORY_SWITCH, published[1].Component)
	assert.Equal("haier_dc330d0000aa_onoffstatus", published[1].StateId())
}
