package entity

import (
	"context"
	"fmt"

	"github.com/berfenger/haier2mqtt/internal/core/domain"
)

const (
	WATER_HEATER_MODE_OFF         = "off"
	WATER_HEATER_MODE_GAS         = "gas"
	WATER_HEATER_MODE_PERFORMANCE = "performance"
	WATER_HEATER_MODE_HEAT_PUMP   = "heat_pump"

	waterHeaterDefaultMin = 35.0
	waterHeaterDefaultMax = 65.0
)

type WaterHeater struct {
	*base
	heatPump bool
}

func newWaterHeater(b *base) *WaterHeater {
	min, max := waterHeaterDefaultMin, waterHeaterDefaultMax
	b.descriptor.Min, b.descriptor.Max = &min, &max
	b.descriptor.Unit = domain.UNIT_CELSIUS
	heatPump := false
	if ext := b.spec.Composite; ext != nil {
		if ext.Min != nil {
			b.descriptor.Min = ext.Min
		}
		if ext.Max != nil {
			b.descriptor.Max = ext.Max
		}
		b.descriptor.Step = ext.Step
		heatPump = ext.HeatPump
	}
	if heatPump {
		b.descriptor.OperationModes = []string{WATER_HEATER_MODE_OFF, WATER_HEATER_MODE_PERFORMANCE, WATER_HEATER_MODE_HEAT_PUMP}
	} else {
		b.descriptor.OperationModes = []string{WATER_HEATER_MODE_OFF, WATER_HEATER_MODE_GAS}
	}
	return &WaterHeater{base: b, heatPump: heatPump}
}

func (w *WaterHeater) Refresh(snapshot domain.Snapshot) {
	w.update(snapshot, w.compute)
}

func (w *WaterHeater) hasDualHeater(snapshot domain.Snapshot) bool {
	return w.heatPump || snapshot.Has("dualHeaterMode")
}

func (w *WaterHeater) compute(snapshot domain.Snapshot) (map[string]any, error) {
	state := map[string]any{}
	for _, key := range []string{"outWaterTemp", "currentTemperature"} {
		if snapshot.Has(key) {
			v, err := snapshot.Float(key)
			if err != nil {
				return nil, err
			}
			state["current_temperature"] = v
			break
		}
	}
	for _, key := range []string{"targetTemp", "targetTemperature"} {
		if snapshot.Has(key) {
			v, err := snapshot.Float(key)
			if err != nil {
				return nil, err
			}
			state["temperature"] = v
			break
		}
	}

	raw, err := required(snapshot, "onOffStatus")
	if err != nil {
		return nil, err
	}
	on, err := readBool(raw)
	if err != nil {
		return nil, err
	}
	state["away_mode"] = onOffState(!on)
	switch {
	case !on:
		state["mode"] = WATER_HEATER_MODE_OFF
	case snapshot.Has("dualHeaterMode"):
		dual, err := readBool(snapshot["dualHeaterMode"])
		if err != nil {
			return nil, err
		}
		if dual {
			state["mode"] = WATER_HEATER_MODE_PERFORMANCE
		} else {
			state["mode"] = WATER_HEATER_MODE_HEAT_PUMP
		}
	default:
		state["mode"] = WATER_HEATER_MODE_GAS
	}
	return state, nil
}

func (w *WaterHeater) Apply(ctx context.Context, cmd Command) error {
	switch cmd.Field {
	case "mode":
		return w.setMode(ctx, cmd.Payload)
	case "temperature":
		v, err := floatPayload(cmd.Payload)
		if err != nil {
			return err
		}
		snapshot := w.lastSnapshot()
		switch {
		case snapshot.Has("targetTemp"):
			return w.write(ctx, map[string]any{"targetTemp": v}, w.compute)
		case snapshot.Has("targetTemperature"):
			return w.write(ctx, map[string]any{"targetTemperature": v}, w.compute)
		}
		return fmt.Errorf("%w: device reports no target temperature", ErrUnknownField)
	case "away_mode":
		away, err := onOffPayload(cmd.Payload)
		if err != nil {
			return err
		}
		return w.write(ctx, map[string]any{"onOffStatus": !away}, w.compute)
	}
	return fmt.Errorf("%w: %s", ErrUnknownField, cmd.Field)
}

func (w *WaterHeater) setMode(ctx context.Context, mode string) error {
	if w.hasDualHeater(w.lastSnapshot()) {
		switch mode {
		case WATER_HEATER_MODE_HEAT_PUMP:
			return w.write(ctx, map[string]any{"onOffStatus": true, "dualHeaterMode": false}, w.compute)
		case WATER_HEATER_MODE_PERFORMANCE:
			return w.write(ctx, map[string]any{"onOffStatus": true, "dualHeaterMode": true}, w.compute)
		}
		return w.write(ctx, map[string]any{"onOffStatus": false}, w.compute)
	}
	return w.write(ctx, map[string]any{"onOffStatus": mode == WATER_HEATER_MODE_GAS}, w.compute)
}
