package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/berfenger/haier2mqtt/internal/core/domain"

	"go.uber.org/zap"
)

var ErrUnclassifiable = errors.New("attribute cannot be classified")

const (
	COMPOSITE_KEY_CLIMATE      = "climate"
	COMPOSITE_KEY_WATER_HEATER = "water_heater"
	COMPOSITE_KEY_COVER        = "cover"
)

var (
	climateFields         = []string{"targetTemperature", "operationMode", "windSpeed"}
	climateDualVentFields = []string{"targetTemperature", "operationMode", "windSpeedL", "windSpeedR"}
	waterHeaterFields     = []string{"outWaterTemp", "targetTemp"}
	waterHeaterGasFields  = []string{"totalUseGasL", "gasPressure"}
	coverFields           = []string{"openDegree"}
)

// IsBinaryPair reports whether a range is exactly the two options "true" and "false".
func IsBinaryPair(r domain.ValueRange) bool {
	if r.Kind != domain.RANGE_LIST || len(r.List) != 2 {
		return false
	}
	a := strings.ToLower(r.List[0].Code)
	b := strings.ToLower(r.List[1].Code)
	return (a == "true" && b == "false") || (a == "false" && b == "true")
}

func isNumericStep(r domain.ValueRange) bool {
	if r.Kind != domain.RANGE_STEP || r.Step == nil {
		return false
	}
	switch strings.ToLower(r.Step.DataType) {
	case "int", "integer", "double", "float":
		return true
	}
	return false
}

// Classify maps one canonical descriptor to its entity category. A descriptor
// without a value yields (nil, nil). The first matching rule wins.
func Classify(raw RawAttribute) (*domain.AttributeSpec, error) {
	if !raw.HasValue {
		return nil, nil
	}

	spec := &domain.AttributeSpec{
		Key:         raw.Name,
		DisplayName: raw.Desc,
		Writable:    raw.Writable,
		ValueRange:  raw.Range,
	}
	if spec.DisplayName == "" {
		spec.DisplayName = raw.Name
	}

	switch {
	case !raw.Writable && raw.Readable:
		if IsBinaryPair(raw.Range) {
			spec.Category = domain.CATEGORY_BINARY_SENSOR
			return spec, nil
		}
		spec.Category = domain.CATEGORY_SENSOR
		if raw.Range.Kind == domain.RANGE_LIST {
			spec.Comparison = domain.NewComparisonTable(raw.Range.List)
			spec.DeviceClass = domain.DEVICE_CLASS_ENUM
			return spec, nil
		}
		spec.DeviceClass, spec.Unit, spec.StateClass = GuessUnit(spec.DisplayName, raw.Unit)
		return spec, nil
	case raw.Writable && isNumericStep(raw.Range):
		spec.Category = domain.CATEGORY_NUMBER
		spec.DeviceClass, spec.Unit, _ = GuessUnit(spec.DisplayName, raw.Unit)
		return spec, nil
	case raw.Writable && IsBinaryPair(raw.Range):
		spec.Category = domain.CATEGORY_SWITCH
		spec.DeviceClass = domain.DEVICE_CLASS_SWITCH
		return spec, nil
	case raw.Writable && raw.Range.Kind == domain.RANGE_LIST:
		spec.Category = domain.CATEGORY_SELECT
		spec.Comparison = domain.NewComparisonTable(raw.Range.List)
		return spec, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnclassifiable, raw.Name)
}

// GuessUnit derives device class, unit and state class from the display label,
// falling back to the declared unit. It returns empty strings when nothing matches.
func GuessUnit(label, declaredUnit string) (deviceClass, unit, stateClass string) {
	switch {
	case strings.Contains(label, "温度"):
		return domain.DEVICE_CLASS_TEMPERATURE, domain.UNIT_CELSIUS, domain.STATE_CLASS_MEASUREMENT
	case strings.Contains(label, "湿度"):
		return domain.DEVICE_CLASS_HUMIDITY, domain.UNIT_PERCENTAGE, domain.STATE_CLASS_MEASUREMENT
	case strings.Contains(label, "用水量"):
		return domain.DEVICE_CLASS_WATER, domain.UNIT_LITERS, usageStateClass(label)
	case strings.Contains(label, "用气量"):
		return domain.DEVICE_CLASS_GAS, domain.UNIT_CUBIC_METERS, usageStateClass(label)
	case strings.Contains(label, "用电量"):
		return domain.DEVICE_CLASS_ENERGY, domain.UNIT_KWH, usageStateClass(label)
	}

	switch strings.TrimSpace(declaredUnit) {
	case "℃", "°C":
		return domain.DEVICE_CLASS_TEMPERATURE, domain.UNIT_CELSIUS, domain.STATE_CLASS_MEASUREMENT
	case "L":
		return domain.DEVICE_CLASS_WATER, domain.UNIT_LITERS, domain.STATE_CLASS_TOTAL
	case "m³", "m3":
		return domain.DEVICE_CLASS_GAS, domain.UNIT_CUBIC_METERS, domain.STATE_CLASS_TOTAL
	case "kWh", "度":
		return domain.DEVICE_CLASS_ENERGY, domain.UNIT_KWH, domain.STATE_CLASS_TOTAL
	case "%":
		return "", domain.UNIT_PERCENTAGE, domain.STATE_CLASS_MEASUREMENT
	}
	return "", "", ""
}

// 累计 is a running total, 本次 (this use) resets.
func usageStateClass(label string) string {
	if strings.Contains(label, "累计") {
		return domain.STATE_CLASS_TOTAL_INCREASING
	}
	return domain.STATE_CLASS_TOTAL
}

// ClassifyGlobal synthesizes the composite specs whose field templates are
// fully present in the descriptor set.
func ClassifyGlobal(raws []RawAttribute) []domain.AttributeSpec {
	byName := make(map[string]RawAttribute, len(raws))
	for _, raw := range raws {
		byName[raw.Name] = raw
	}
	hasAll := func(keys []string) bool {
		for _, k := range keys {
			if _, ok := byName[k]; !ok {
				return false
			}
		}
		return true
	}

	var specs []domain.AttributeSpec

	if hasAll(climateFields) {
		specs = append(specs, compositeSpec(byName, COMPOSITE_KEY_CLIMATE, "Climate", domain.CATEGORY_CLIMATE,
			"targetTemperature", climateFields, false, false))
	} else if hasAll(climateDualVentFields) {
		specs = append(specs, compositeSpec(byName, COMPOSITE_KEY_CLIMATE, "Climate", domain.CATEGORY_CLIMATE,
			"targetTemperature", climateDualVentFields, true, false))
	}

	if hasAll(waterHeaterFields) {
		for _, gasField := range waterHeaterGasFields {
			if _, ok := byName[gasField]; ok {
				keys := append(slices.Clone(waterHeaterFields), gasField)
				_, heatPump := byName["dualHeaterMode"]
				if heatPump {
					keys = append(keys, "dualHeaterMode")
				}
				specs = append(specs, compositeSpec(byName, COMPOSITE_KEY_WATER_HEATER, "Water Heater",
					domain.CATEGORY_WATER_HEATER, "targetTemp", keys, false, heatPump))
				break
			}
		}
	}

	if hasAll(coverFields) {
		specs = append(specs, compositeSpec(byName, COMPOSITE_KEY_COVER, "Cover", domain.CATEGORY_COVER,
			"openDegree", coverFields, false, false))
	}

	return specs
}

func compositeSpec(byName map[string]RawAttribute, key, name, category, rangeField string,
	keys []string, dualVent, heatPump bool) domain.AttributeSpec {

	ranged := mustAttribute(byName, rangeField)
	ext := &domain.CompositeExt{
		DualVent: dualVent,
		HeatPump: heatPump,
		Keys:     keys,
	}
	if ranged.Range.Kind == domain.RANGE_STEP && ranged.Range.Step != nil {
		min, max, step := ranged.Range.Step.Min, ranged.Range.Step.Max, ranged.Range.Step.Step
		ext.Min, ext.Max, ext.Step = &min, &max, &step
	}
	return domain.AttributeSpec{
		Key:         key,
		DisplayName: name,
		Category:    category,
		Writable:    true,
		ValueRange:  domain.NoRange(),
		Composite:   ext,
	}
}

// a matched template guarantees its fields, a miss here is a programming error
func mustAttribute(byName map[string]RawAttribute, name string) RawAttribute {
	raw, ok := byName[name]
	if !ok {
		panic(fmt.Sprintf("composite template matched without field %s", name))
	}
	return raw
}

type Classifier struct {
	logger *zap.Logger
}

func NewClassifier(logger *zap.Logger) *Classifier {
	return &Classifier{logger: logger}
}

// ClassifyDevice classifies a device's full digital model. It returns the specs
// in classification order, composites last, and the attribute values the model
// carried.
func (c *Classifier) ClassifyDevice(deviceId string, descriptors []json.RawMessage) ([]domain.AttributeSpec, map[string]string) {
	raws := make([]RawAttribute, 0, len(descriptors))
	values := map[string]string{}
	for _, descriptor := range descriptors {
		raw, err := NormalizeSchema(descriptor)
		if err != nil {
			c.logger.Error("classifier: invalid attribute descriptor", zap.String("device", deviceId),
				zap.ByteString("descriptor", descriptor), zap.Error(err))
			continue
		}
		raws = append(raws, raw)
		if raw.HasValue {
			values[raw.Name] = raw.Value
		}
	}

	var specs []domain.AttributeSpec
	for _, raw := range raws {
		spec, err := Classify(raw)
		if err != nil {
			c.logger.Warn("classifier: unclassifiable attribute", zap.String("device", deviceId),
				zap.String("attribute", raw.Name), zap.Error(err))
			continue
		}
		if spec != nil {
			specs = append(specs, *spec)
		}
	}
	specs = append(specs, ClassifyGlobal(raws)...)
	return specs, values
}
