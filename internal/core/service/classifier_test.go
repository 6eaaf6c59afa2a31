package service

import (
	"encoding/json"
	"testing"

	"github.com/berfenger/haier2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const windSpeedDescriptor = `{"name":"windSpeed","desc":"风速","writable":true,"readable":true,"value":"2",
	"valueRange":{"type":"LIST","dataList":[{"data":"1","desc":"High"},{"data":"2","desc":"Medium"},
	{"data":"3","desc":"Low"},{"data":"5","desc":"Auto"}]}}`

func normalize(require *require.Assertions, descriptor string) RawAttribute {
	raw, err := NormalizeSchema(json.RawMessage(descriptor))
	require.NoError(err)
	return raw
}

func TestClassifyWithoutValue(t *testing.T) {

	require := require.New(t)

	raw := normalize(require, `{"name":"errCode","desc":"故障","writable":false,"readable":true}`)
	spec, err := Classify(raw)
	require.NoError(err)
	require.Nil(spec)

	raw = normalize(require, `{"name":"errCode","desc":"故障","writable":false,"readable":true,"value":null}`)
	spec, err = Classify(raw)
	require.NoError(err)
	require.Nil(spec)
}

func TestClassifyIsDeterministic(t *testing.T) {

	require := require.New(t)

	raw := normalize(require, windSpeedDescriptor)
	first, err := Classify(raw)
	require.NoError(err)
	for i := 0; i < 10; i++ {
		again, err := Classify(raw)
		require.NoError(err)
		require.Equal(first, again)
	}
}

func TestBinaryPairIsSwitchNotSelect(t *testing.T) {

	require := require.New(t)

	for _, list := range []string{
		`[{"data":"false","desc":"关"},{"data":"true","desc":"开"}]`,
		`[{"data":"true","desc":"开"},{"data":"false","desc":"关"}]`,
		`[{"data":"TRUE","desc":"开"},{"data":"False","desc":"关"}]`,
	} {
		raw := normalize(require, `{"name":"onOffStatus","desc":"开关","writable":true,"readable":true,"value":"true",
			"valueRange":{"type":"LIST","dataList":`+list+`}}`)
		spec, err := Classify(raw)
		require.NoError(err)
		require.Equal(domain.CATEGORY_SWITCH, spec.Category)
		require.Nil(spec.Comparison)
	}
}

func TestReadOnlyBinaryPairIsBinarySensor(t *testing.T) {

	require := require.New(t)

	raw := normalize(require, `{"name":"heatingStatus","desc":"加热状态","writable":false,"readable":true,"value":"false",
		"valueRange":{"type":"LIST","dataList":[{"data":"false","desc":"否"},{"data":"true","desc":"是"}]}}`)
	spec, err := Classify(raw)
	require.NoError(err)
	require.Equal(domain.CATEGORY_BINARY_SENSOR, spec.Category)
}

func TestReadOnlyListIsEnumSensor(t *testing.T) {

	require := require.New(t)

	raw := normalize(require, `{"name":"workStatus","desc":"工作状态","writable":false,"readable":true,"value":"0",
		"valueRange":{"type":"LIST","dataList":[{"data":"0","desc":"待机"},{"data":"1","desc":"运行"},{"data":"2","desc":"故障"}]}}`)
	spec, err := Classify(raw)
	require.NoError(err)
	require.Equal(domain.CATEGORY_SENSOR, spec.Category)
	require.Equal(domain.DEVICE_CLASS_ENUM, spec.DeviceClass)
	require.Equal([]string{"待机", "运行", "故障"}, spec.Comparison.Labels())
}

func TestReadOnlyStepIsUnitSensor(t *testing.T) {

	require := require.New(t)

	raw := normalize(require, `{"name":"outWaterTemp","desc":"出水温度","writable":false,"readable":true,"value":"38",
		"valueRange":{"type":"STEP","dataStep":{"dataType":"Integer","minValue":"0","maxValue":"100","step":"1"}}}`)
	spec, err := Classify(raw)
	require.NoError(err)
	require.Equal(domain.CATEGORY_SENSOR, spec.Category)
	require.Equal(domain.DEVICE_CLASS_TEMPERATURE, spec.DeviceClass)
	require.Equal(domain.UNIT_CELSIUS, spec.Unit)
	require.Equal(domain.STATE_CLASS_MEASUREMENT, spec.StateClass)
}

func TestWritableStepIsNumber(t *testing.T) {

	require := require.New(t)

	raw := normalize(require, `{"name":"targetTemp","desc":"目标温度","writable":true,"readable":true,"value":"40",
		"valueRange":{"type":"STEP","dataStep":{"dataType":"Double","minValue":"35","maxValue":"70","step":"0.5"}}}`)
	spec, err := Classify(raw)
	require.NoError(err)
	require.Equal(domain.CATEGORY_NUMBER, spec.Category)
	require.Equal(domain.RANGE_STEP, spec.ValueRange.Kind)
	require.Equal(35.0, spec.ValueRange.Step.Min)
	require.Equal(70.0, spec.ValueRange.Step.Max)
	require.Equal(0.5, spec.ValueRange.Step.Step)
	require.Equal(domain.UNIT_CELSIUS, spec.Unit)
}

func TestWritableStringStepIsUnclassifiable(t *testing.T) {

	require := require.New(t)

	raw := normalize(require, `{"name":"deviceName","desc":"名称","writable":true,"readable":true,"value":"x",
		"valueRange":{"type":"STEP","dataStep":{"dataType":"String","minValue":"0","maxValue":"10","step":"1"}}}`)
	spec, err := Classify(raw)
	require.ErrorIs(err, ErrUnclassifiable)
	require.Nil(spec)
}

func TestSelectEndToEnd(t *testing.T) {

	require := require.New(t)

	raw := normalize(require, windSpeedDescriptor)
	spec, err := Classify(raw)
	require.NoError(err)
	require.Equal(domain.CATEGORY_SELECT, spec.Category)
	require.Equal([]string{"High", "Medium", "Low", "Auto"}, spec.Comparison.Labels())

	codec := NewValueCodec(zap.NewNop())
	decoded, err := codec.Decode(*spec, "2")
	require.NoError(err)
	require.Equal("Medium", decoded)

	encoded, err := codec.Encode(*spec, "Low")
	require.NoError(err)
	require.Equal("3", encoded)
}

func TestGuessUnit(t *testing.T) {

	assert := assert.New(t)

	dc, unit, sc := GuessUnit("室内湿度", "")
	assert.Equal(domain.DEVICE_CLASS_HUMIDITY, dc)
	assert.Equal(domain.UNIT_PERCENTAGE, unit)
	assert.Equal(domain.STATE_CLASS_MEASUREMENT, sc)

	dc, unit, sc = GuessUnit("累计用气量", "")
	assert.Equal(domain.DEVICE_CLASS_GAS, dc)
	assert.Equal(domain.UNIT_CUBIC_METERS, unit)
	assert.Equal(domain.STATE_CLASS_TOTAL_INCREASING, sc)

	dc, unit, sc = GuessUnit("本次用水量", "")
	assert.Equal(domain.DEVICE_CLASS_WATER, dc)
	assert.Equal(domain.UNIT_LITERS, unit)
	assert.Equal(domain.STATE_CLASS_TOTAL, sc)

	dc, unit, sc = GuessUnit("累计用电量", "")
	assert.Equal(domain.DEVICE_CLASS_ENERGY, dc)
	assert.Equal(domain.UNIT_KWH, unit)
	assert.Equal(domain.STATE_CLASS_TOTAL_INCREASING, sc)

	dc, unit, _ = GuessUnit("Water temp", "℃")
	assert.Equal(domain.DEVICE_CLASS_TEMPERATURE, dc)
	assert.Equal(domain.UNIT_CELSIUS, unit)

	dc, unit, sc = GuessUnit("风速", "")
	assert.Empty(dc)
	assert.Empty(unit)
	assert.Empty(sc)
}

func stepRaw(name string, min, max, step float64) RawAttribute {
	return RawAttribute{
		Name: name, Writable: true, Readable: true, HasValue: true, Value: "0",
		Range: domain.StepValueRange(domain.StepRange{Min: min, Max: max, Step: step, DataType: "Integer"}),
	}
}

func plainRaw(name string) RawAttribute {
	return RawAttribute{Name: name, Writable: true, Readable: true, HasValue: true, Value: "0", Range: domain.NoRange()}
}

func TestClassifyGlobalClimate(t *testing.T) {

	require := require.New(t)

	specs := ClassifyGlobal([]RawAttribute{
		stepRaw("targetTemperature", 16, 30, 1), plainRaw("operationMode"), plainRaw("windSpeed"),
	})
	require.Len(specs, 1)
	require.Equal(domain.CATEGORY_CLIMATE, specs[0].Category)
	require.False(specs[0].Composite.DualVent)
	require.Equal(16.0, *specs[0].Composite.Min)
	require.Equal(30.0, *specs[0].Composite.Max)

	specs = ClassifyGlobal([]RawAttribute{
		stepRaw("targetTemperature", 16, 30, 1), plainRaw("operationMode"),
		plainRaw("windSpeedL"), plainRaw("windSpeedR"),
	})
	require.Len(specs, 1)
	require.Equal(domain.CATEGORY_CLIMATE, specs[0].Category)
	require.True(specs[0].Composite.DualVent)
}

func TestClassifyGlobalWaterHeaterAndCover(t *testing.T) {

	require := require.New(t)

	specs := ClassifyGlobal([]RawAttribute{
		plainRaw("outWaterTemp"), stepRaw("targetTemp", 35, 65, 1), plainRaw("gasPressure"),
		stepRaw("openDegree", 0, 100, 1),
	})
	require.Len(specs, 2)
	require.Equal(domain.CATEGORY_WATER_HEATER, specs[0].Category)
	require.False(specs[0].Composite.HeatPump)
	require.Equal(65.0, *specs[0].Composite.Max)
	require.Equal(domain.CATEGORY_COVER, specs[1].Category)
	require.Equal(100.0, *specs[1].Composite.Max)

	specs = ClassifyGlobal([]RawAttribute{
		plainRaw("outWaterTemp"), stepRaw("targetTemp", 35, 65, 1), plainRaw("totalUseGasL"), plainRaw("dualHeaterMode"),
	})
	require.Len(specs, 1)
	require.True(specs[0].Composite.HeatPump)
	require.Contains(specs[0].Composite.Keys, "dualHeaterMode")

	// missing gas field
	specs = ClassifyGlobal([]RawAttribute{plainRaw("outWaterTemp"), stepRaw("targetTemp", 35, 65, 1)})
	require.Empty(specs)
}

func TestClassifyDevice(t *testing.T) {

	require := require.New(t)

	c := NewClassifier(zap.NewNop())
	specs, values := c.ClassifyDevice("dev1", []json.RawMessage{
		json.RawMessage(windSpeedDescriptor),
		json.RawMessage(`{"name":"targetTemperature","desc":"目标温度","writable":true,"readable":true,"value":"26",
			"valueRange":{"type":"STEP","dataStep":{"dataType":"Integer","minValue":"16","maxValue":"30","step":"1"}}}`),
		json.RawMessage(`{"name":"operationMode","desc":"模式","writable":true,"readable":true,"value":"1",
			"valueRange":{"type":"LIST","dataList":[{"data":"0","desc":"自动"},{"data":"1","desc":"制冷"}]}}`),
		json.RawMessage(`{"name":"text","writable":true,"readable":true,"value":"x"}`),
		json.RawMessage(`not json`),
	})
	require.Len(specs, 4)
	require.Equal("windSpeed", specs[0].Key)
	require.Equal("targetTemperature", specs[1].Key)
	require.Equal("operationMode", specs[2].Key)
	require.Equal(COMPOSITE_KEY_CLIMATE, specs[3].Key)
	require.Equal("26", values["targetTemperature"])
	require.Equal("x", values["text"])
}
