package entity

import (
	"context"
	"fmt"

	"github.com/berfenger/haier2mqtt/internal/core/domain"
)

const (
	HVAC_MODE_OFF      = "off"
	HVAC_MODE_AUTO     = "auto"
	HVAC_MODE_COOL     = "cool"
	HVAC_MODE_HEAT     = "heat"
	HVAC_MODE_DRY      = "dry"
	HVAC_MODE_FAN_ONLY = "fan_only"

	FAN_MODE_OFF    = "off"
	FAN_MODE_AUTO   = "auto"
	FAN_MODE_LOW    = "low"
	FAN_MODE_MEDIUM = "medium"
	FAN_MODE_HIGH   = "high"

	SWING_MODE_OFF        = "off"
	SWING_MODE_VERTICAL   = "vertical"
	SWING_MODE_HORIZONTAL = "horizontal"
	SWING_MODE_BOTH       = "both"

	swingVerticalOn   = 8
	swingHorizontalOn = 7
)

var (
	hvacModeCodes = map[string]int{
		HVAC_MODE_AUTO:     0,
		HVAC_MODE_COOL:     1,
		HVAC_MODE_DRY:      2,
		HVAC_MODE_HEAT:     4,
		HVAC_MODE_FAN_ONLY: 6,
	}
	fanModeCodes = map[string]int{
		FAN_MODE_HIGH:   1,
		FAN_MODE_MEDIUM: 2,
		FAN_MODE_LOW:    3,
		FAN_MODE_AUTO:   5,
	}
	// vertical and horizontal angle codes per swing mode
	swingModeCodes = map[string][2]int{
		SWING_MODE_OFF:        {0, 0},
		SWING_MODE_HORIZONTAL: {0, swingHorizontalOn},
		SWING_MODE_VERTICAL:   {swingVerticalOn, 0},
		SWING_MODE_BOTH:       {swingVerticalOn, swingHorizontalOn},
	}
)

func modeForCode(codes map[string]int, code int) (string, bool) {
	for mode, c := range codes {
		if c == code {
			return mode, true
		}
	}
	return "", false
}

type Climate struct {
	*base
	dualVent bool
}

func newClimate(b *base) *Climate {
	b.descriptor.Unit = domain.UNIT_CELSIUS
	b.descriptor.HVACModes = []string{HVAC_MODE_OFF, HVAC_MODE_AUTO, HVAC_MODE_COOL, HVAC_MODE_HEAT, HVAC_MODE_DRY, HVAC_MODE_FAN_ONLY}
	b.descriptor.FanModes = []string{FAN_MODE_AUTO, FAN_MODE_LOW, FAN_MODE_MEDIUM, FAN_MODE_HIGH}
	b.descriptor.SwingModes = []string{SWING_MODE_OFF, SWING_MODE_VERTICAL, SWING_MODE_HORIZONTAL, SWING_MODE_BOTH}
	dualVent := false
	if ext := b.spec.Composite; ext != nil {
		b.descriptor.Min, b.descriptor.Max, b.descriptor.Step = ext.Min, ext.Max, ext.Step
		dualVent = ext.DualVent
	}
	return &Climate{base: b, dualVent: dualVent}
}

func (c *Climate) Refresh(snapshot domain.Snapshot) {
	c.update(snapshot, c.compute)
}

func (c *Climate) key(name string) string {
	if c.dualVent {
		return name + "L"
	}
	return name
}

// a device that does not report onOffStatus is taken as powered
func isPowered(snapshot domain.Snapshot) (bool, error) {
	raw, ok := snapshot.Get("onOffStatus")
	if !ok {
		return true, nil
	}
	return readBool(raw)
}

func (c *Climate) compute(snapshot domain.Snapshot) (map[string]any, error) {
	state := map[string]any{}
	if v, err := snapshot.Float("indoorTemperature"); err == nil {
		state["current_temperature"] = v
	}
	if v, err := snapshot.Float("indoorHumidity"); err == nil && v != 0 {
		state["current_humidity"] = v
	}
	target, err := snapshot.Float("targetTemperature")
	if err != nil {
		return nil, err
	}
	state["temperature"] = target

	on, err := isPowered(snapshot)
	if err != nil {
		return nil, err
	}
	if !on {
		state["mode"] = HVAC_MODE_OFF
		state["fan_mode"] = FAN_MODE_OFF
		state["swing_mode"] = SWING_MODE_OFF
		return state, nil
	}

	modeCode, err := intValue(snapshot, "operationMode", "")
	if err != nil {
		return nil, err
	}
	if mode, ok := modeForCode(hvacModeCodes, modeCode); ok {
		state["mode"] = mode
	}

	fanCode, err := intValue(snapshot, c.key("windSpeed"), "")
	if err != nil {
		return nil, err
	}
	if fan, ok := modeForCode(fanModeCodes, fanCode); ok {
		state["fan_mode"] = fan
	}

	vertical, err := intValue(snapshot, c.key("windDirectionVertical"), "0")
	if err != nil {
		return nil, err
	}
	horizontal, err := intValue(snapshot, c.key("windDirectionHorizontal"), "0")
	if err != nil {
		return nil, err
	}
	switch {
	case vertical != 0 && horizontal != 0:
		state["swing_mode"] = SWING_MODE_BOTH
	case vertical != 0:
		state["swing_mode"] = SWING_MODE_VERTICAL
	case horizontal != 0:
		state["swing_mode"] = SWING_MODE_HORIZONTAL
	default:
		state["swing_mode"] = SWING_MODE_OFF
	}
	return state, nil
}

func (c *Climate) Apply(ctx context.Context, cmd Command) error {
	switch cmd.Field {
	case "mode":
		return c.setMode(ctx, cmd.Payload)
	case "fan_mode":
		code, ok := fanModeCodes[cmd.Payload]
		if !ok {
			return fmt.Errorf("%w: fan mode %q", ErrUnsupportedMode, cmd.Payload)
		}
		if c.dualVent {
			return c.write(ctx, map[string]any{"windSpeedL": code, "windSpeedR": code}, c.compute)
		}
		return c.write(ctx, map[string]any{"windSpeed": code}, c.compute)
	case "swing_mode":
		codes, ok := swingModeCodes[cmd.Payload]
		if !ok {
			return fmt.Errorf("%w: swing mode %q", ErrUnsupportedMode, cmd.Payload)
		}
		if c.dualVent {
			return c.write(ctx, map[string]any{
				"windDirectionVerticalL":   codes[0],
				"windDirectionVerticalR":   codes[0],
				"windDirectionHorizontalL": codes[1],
				"windDirectionHorizontalR": codes[1],
			}, c.compute)
		}
		return c.write(ctx, map[string]any{
			"windDirectionVertical":   codes[0],
			"windDirectionHorizontal": codes[1],
		}, c.compute)
	case "temperature":
		v, err := floatPayload(cmd.Payload)
		if err != nil {
			return err
		}
		return c.write(ctx, map[string]any{"targetTemperature": v}, c.compute)
	}
	return fmt.Errorf("%w: %s", ErrUnknownField, cmd.Field)
}

func (c *Climate) setMode(ctx context.Context, mode string) error {
	if mode == HVAC_MODE_OFF {
		return c.write(ctx, map[string]any{"onOffStatus": false}, c.compute)
	}
	code, ok := hvacModeCodes[mode]
	if !ok {
		return fmt.Errorf("%w: hvac mode %q", ErrUnsupportedMode, mode)
	}
	on, err := isPowered(c.lastSnapshot())
	if err != nil {
		return err
	}
	if !on {
		if err := c.write(ctx, map[string]any{"onOffStatus": true}, c.compute); err != nil {
			return err
		}
	}
	return c.write(ctx, map[string]any{"operationMode": code}, c.compute)
}
