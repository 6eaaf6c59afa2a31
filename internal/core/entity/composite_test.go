package entity

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/haier2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func climateSpec(dualVent bool) domain.AttributeSpec {
	return domain.AttributeSpec{
		Key: "climate", DisplayName: "Climate", Category: domain.CATEGORY_CLIMATE, Writable: true,
		Composite: &domain.CompositeExt{DualVent: dualVent, Min: ptr(16), Max: ptr(30), Step: ptr(1)},
	}
}

func TestClimateRefresh(t *testing.T) {

	assert := assert.New(t)

	device, _ := testDevice([]domain.AttributeSpec{climateSpec(false)}, map[string]string{
		"onOffStatus": "true", "operationMode": "4", "windSpeed": "3", "targetTemperature": "24",
		"indoorTemperature": "21.5", "indoorHumidity": "0", "windDirectionVertical": "8",
	})
	climate := build(device)["climate"]
	climate.Refresh(device.Snapshot())

	state := climate.State()
	assert.True(state.Available)
	assert.Equal(HVAC_MODE_HEAT, state.State["mode"])
	assert.Equal(FAN_MODE_LOW, state.State["fan_mode"])
	assert.Equal(SWING_MODE_VERTICAL, state.State["swing_mode"])
	assert.Equal(24.0, state.State["temperature"])
	assert.Equal(21.5, state.State["current_temperature"])
	assert.NotContains(state.State, "current_humidity")
	assert.Equal(16.0, *climate.Descriptor().Min)

	device.ApplyDelta(map[string]string{"onOffStatus": "false"})
	climate.Refresh(device.Snapshot())
	state = climate.State()
	assert.Equal(HVAC_MODE_OFF, state.State["mode"])
	assert.Equal(FAN_MODE_OFF, state.State["fan_mode"])
	assert.Equal(SWING_MODE_OFF, state.State["swing_mode"])
}

func TestClimateDualVentSwing(t *testing.T) {

	require := require.New(t)

	device, writer := testDevice([]domain.AttributeSpec{climateSpec(true)}, map[string]string{
		"onOffStatus": "true", "operationMode": "1", "windSpeedL": "5", "windSpeedR": "5", "targetTemperature": "26",
		"windDirectionVerticalL": "8", "windDirectionHorizontalL": "7",
	})
	climate := build(device)["climate"]
	climate.Refresh(device.Snapshot())
	require.Equal(SWING_MODE_BOTH, climate.State().State["swing_mode"])
	require.Equal(FAN_MODE_AUTO, climate.State().State["fan_mode"])

	require.NoError(climate.Apply(context.Background(), Command{Field: "swing_mode", Payload: SWING_MODE_HORIZONTAL}))
	require.NoError(climate.Apply(context.Background(), Command{Field: "fan_mode", Payload: FAN_MODE_HIGH}))
	require.Equal([]map[string]any{
		{"windDirectionVerticalL": 0, "windDirectionVerticalR": 0, "windDirectionHorizontalL": 7, "windDirectionHorizontalR": 7},
		{"windSpeedL": 1, "windSpeedR": 1},
	}, writer.Writes())
	require.Equal(SWING_MODE_HORIZONTAL, climate.State().State["swing_mode"])
	require.Equal(FAN_MODE_HIGH, climate.State().State["fan_mode"])
}

func TestClimateSetModeWhileOff(t *testing.T) {

	require := require.New(t)

	device, writer := testDevice([]domain.AttributeSpec{climateSpec(false)}, map[string]string{
		"onOffStatus": "false", "operationMode": "0", "windSpeed": "5", "targetTemperature": "26",
	})
	climate := build(device)["climate"]
	climate.Refresh(device.Snapshot())

	require.NoError(climate.Apply(context.Background(), Command{Field: "mode", Payload: HVAC_MODE_COOL}))
	require.Equal([]map[string]any{{"onOffStatus": true}, {"operationMode": 1}}, writer.Writes())
	require.Equal(HVAC_MODE_COOL, climate.State().State["mode"])

	require.NoError(climate.Apply(context.Background(), Command{Field: "mode", Payload: HVAC_MODE_OFF}))
	require.Equal(map[string]any{"onOffStatus": false}, writer.Writes()[2])

	require.ErrorIs(climate.Apply(context.Background(), Command{Field: "mode", Payload: "turbo"}), ErrUnsupportedMode)

	require.NoError(climate.Apply(context.Background(), Command{Field: "temperature", Payload: "22.5"}))
	require.Equal(map[string]any{"targetTemperature": 22.5}, writer.Writes()[3])
}

func TestClimateSeesOneDeltaAtOnce(t *testing.T) {

	require := require.New(t)

	device, _ := testDevice([]domain.AttributeSpec{climateSpec(false)}, map[string]string{
		"onOffStatus": "true", "operationMode": "0", "windSpeed": "5", "targetTemperature": "16",
	})
	entities := Build(device, "bridge", testCodec(), testLogger())

	// every delta moves mode, fan and target together
	type combo struct {
		mode, fan string
		target    float64
	}
	deltas := []map[string]string{
		{"operationMode": "1", "windSpeed": "1", "targetTemperature": "17"},
		{"operationMode": "2", "windSpeed": "2", "targetTemperature": "18"},
		{"operationMode": "4", "windSpeed": "3", "targetTemperature": "19"},
	}
	valid := map[combo]bool{
		{HVAC_MODE_AUTO, FAN_MODE_AUTO, 16}: true,
		{HVAC_MODE_COOL, FAN_MODE_HIGH, 17}: true,
		{HVAC_MODE_DRY, FAN_MODE_MEDIUM, 18}: true,
		{HVAC_MODE_HEAT, FAN_MODE_LOW, 19}: true,
	}

	var mu sync.Mutex
	var seen []combo
	cancel := Bind(device, entities, func(e domain.EntityStateEvent) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, combo{e.State["mode"].(string), e.State["fan_mode"].(string), e.State["temperature"].(float64)})
	})
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			device.ApplyDelta(deltas[i%len(deltas)])
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(seen, 21)
	for _, c := range seen {
		require.True(valid[c], "mixed state %+v", c)
	}
}

func TestClimateWriteKeepsConcurrentDelta(t *testing.T) {

	require := require.New(t)

	device, _ := testDevice([]domain.AttributeSpec{climateSpec(false)}, map[string]string{
		"onOffStatus": "true", "operationMode": "1", "windSpeed": "1", "targetTemperature": "20",
	})
	climate := build(device)["climate"].(*Climate)
	climate.Refresh(device.Snapshot())

	newer := domain.Snapshot{
		"onOffStatus": "true", "operationMode": "1", "windSpeed": "1", "targetTemperature": "25",
	}
	refreshed := make(chan struct{})
	var once sync.Once
	compute := func(snapshot domain.Snapshot) (map[string]any, error) {
		// a delta lands while the written value is being shown
		once.Do(func() {
			go func() {
				climate.Refresh(newer)
				close(refreshed)
			}()
			select {
			case <-refreshed:
			case <-time.After(100 * time.Millisecond):
			}
		})
		return climate.compute(snapshot)
	}
	require.NoError(climate.write(context.Background(), map[string]any{"windSpeed": 3}, compute))

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		require.Fail("delta refresh did not finish")
	}
	state := climate.State()
	require.True(state.Available)
	require.Equal(25.0, state.State["temperature"])
}

func waterHeaterSpec(heatPump bool) domain.AttributeSpec {
	return domain.AttributeSpec{
		Key: "water_heater", DisplayName: "Water Heater", Category: domain.CATEGORY_WATER_HEATER, Writable: true,
		Composite: &domain.CompositeExt{HeatPump: heatPump, Min: ptr(35), Max: ptr(70), Step: ptr(1)},
	}
}

func TestWaterHeaterGas(t *testing.T) {

	require := require.New(t)

	device, writer := testDevice([]domain.AttributeSpec{waterHeaterSpec(false)}, map[string]string{
		"onOffStatus": "true", "outWaterTemp": "38", "targetTemp": "40",
	})
	heater := build(device)["water_heater"]
	heater.Refresh(device.Snapshot())

	state := heater.State()
	require.Equal(WATER_HEATER_MODE_GAS, state.State["mode"])
	require.Equal(STATE_OFF, state.State["away_mode"])
	require.Equal(38.0, state.State["current_temperature"])
	require.Equal(40.0, state.State["temperature"])
	require.Equal([]string{WATER_HEATER_MODE_OFF, WATER_HEATER_MODE_GAS}, heater.Descriptor().OperationModes)
	require.Equal(70.0, *heater.Descriptor().Max)

	require.NoError(heater.Apply(context.Background(), Command{Field: "temperature", Payload: "45"}))
	require.NoError(heater.Apply(context.Background(), Command{Field: "mode", Payload: WATER_HEATER_MODE_OFF}))
	require.NoError(heater.Apply(context.Background(), Command{Field: "away_mode", Payload: STATE_OFF}))
	require.Equal([]map[string]any{
		{"targetTemp": 45.0},
		{"onOffStatus": false},
		{"onOffStatus": true},
	}, writer.Writes())
	require.Equal(WATER_HEATER_MODE_GAS, heater.State().State["mode"])
}

func TestWaterHeaterHeatPump(t *testing.T) {

	require := require.New(t)

	device, writer := testDevice([]domain.AttributeSpec{waterHeaterSpec(true)}, map[string]string{
		"onOffStatus": "true", "outWaterTemp": "50", "targetTemp": "55", "dualHeaterMode": "false",
	})
	heater := build(device)["water_heater"]
	heater.Refresh(device.Snapshot())
	require.Equal(WATER_HEATER_MODE_HEAT_PUMP, heater.State().State["mode"])
	require.Equal([]string{WATER_HEATER_MODE_OFF, WATER_HEATER_MODE_PERFORMANCE, WATER_HEATER_MODE_HEAT_PUMP},
		heater.Descriptor().OperationModes)

	require.NoError(heater.Apply(context.Background(), Command{Field: "mode", Payload: WATER_HEATER_MODE_PERFORMANCE}))
	require.Equal([]map[string]any{{"onOffStatus": true, "dualHeaterMode": true}}, writer.Writes())
	require.Equal(WATER_HEATER_MODE_PERFORMANCE, heater.State().State["mode"])

	device.ApplyDelta(map[string]string{"onOffStatus": "false"})
	heater.Refresh(device.Snapshot())
	require.Equal(WATER_HEATER_MODE_OFF, heater.State().State["mode"])
	require.Equal(STATE_ON, heater.State().State["away_mode"])
}

func TestCover(t *testing.T) {

	require := require.New(t)

	device, writer := testDevice([]domain.AttributeSpec{{
		Key: "cover", DisplayName: "Cover", Category: domain.CATEGORY_COVER, Writable: true,
		Composite: &domain.CompositeExt{Min: ptr(0), Max: ptr(100), Step: ptr(1)},
	}}, map[string]string{"onOffStatus": "false", "openDegree": "0"})
	cover := build(device)["cover"]
	cover.Refresh(device.Snapshot())
	require.Equal(COVER_STATE_CLOSED, cover.State().State["state"])
	require.Equal(0, cover.State().State["position"])

	require.NoError(cover.Apply(context.Background(), Command{Field: "state", Payload: COVER_COMMAND_OPEN}))
	require.Equal(COVER_STATE_OPEN, cover.State().State["state"])
	require.NoError(cover.Apply(context.Background(), Command{Field: "state", Payload: COVER_COMMAND_STOP}))
	require.NoError(cover.Apply(context.Background(), Command{Field: "position", Payload: strconv.Itoa(60)}))
	require.Equal(60, cover.State().State["position"])
	require.Equal([]map[string]any{
		{"onOffStatus": true},
		{"pause": true},
		{"openDegree": 60},
	}, writer.Writes())
	require.ErrorIs(cover.Apply(context.Background(), Command{Field: "state", Payload: "TILT"}), ErrUnsupportedMode)
}
