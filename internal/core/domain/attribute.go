package domain

const (
	CATEGORY_SENSOR        = "sensor"
	CATEGORY_BINARY_SENSOR = "binary_sensor"
	CATEGORY_NUMBER        = "number"
	CATEGORY_SELECT        = "select"
	CATEGORY_SWITCH        = "switch"
	CATEGORY_CLIMATE       = "climate"
	CATEGORY_WATER_HEATER  = "water_heater"
	CATEGORY_COVER         = "cover"
)

const (
	DEVICE_CLASS_TEMPERATURE = "temperature"
	DEVICE_CLASS_HUMIDITY    = "humidity"
	DEVICE_CLASS_WATER       = "water"
	DEVICE_CLASS_GAS         = "gas"
	DEVICE_CLASS_ENERGY      = "energy"
	DEVICE_CLASS_ENUM        = "enum"
	DEVICE_CLASS_SWITCH      = "switch"

	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL            = "total"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"

	UNIT_CELSIUS      = "°C"
	UNIT_PERCENTAGE   = "%"
	UNIT_LITERS       = "L"
	UNIT_CUBIC_METERS = "m³"
	UNIT_KWH          = "kWh"
)

type RangeKind string

const (
	RANGE_NONE RangeKind = ""
	RANGE_STEP RangeKind = "step"
	RANGE_LIST RangeKind = "list"
)

type StepRange struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Step     float64 `json:"step"`
	DataType string  `json:"data_type"`
}

type ListOption struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// ValueRange is a tagged variant: Step is set for RANGE_STEP, List for RANGE_LIST.
type ValueRange struct {
	Kind RangeKind    `json:"kind,omitempty"`
	Step *StepRange   `json:"step,omitempty"`
	List []ListOption `json:"list,omitempty"`
}

func NoRange() ValueRange {
	return ValueRange{Kind: RANGE_NONE}
}

func StepValueRange(step StepRange) ValueRange {
	return ValueRange{Kind: RANGE_STEP, Step: &step}
}

func ListValueRange(options []ListOption) ValueRange {
	return ValueRange{Kind: RANGE_LIST, List: options}
}

// ComparisonTable maps wire codes to display labels and back.
type ComparisonTable struct {
	Options []ListOption `json:"options"`
}

func NewComparisonTable(options []ListOption) *ComparisonTable {
	return &ComparisonTable{Options: append([]ListOption(nil), options...)}
}

func (t *ComparisonTable) Label(code string) (string, bool) {
	for _, o := range t.Options {
		if o.Code == code {
			return o.Label, true
		}
	}
	return "", false
}

func (t *ComparisonTable) Code(label string) (string, bool) {
	for _, o := range t.Options {
		if o.Label == label {
			return o.Code, true
		}
	}
	return "", false
}

func (t *ComparisonTable) Labels() []string {
	labels := make([]string, 0, len(t.Options))
	for _, o := range t.Options {
		labels = append(labels, o.Label)
	}
	return labels
}

// CompositeExt carries the extra data of a synthesized climate, water heater or cover spec.
type CompositeExt struct {
	DualVent bool     `json:"dual_vent,omitempty"`
	HeatPump bool     `json:"heat_pump,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Step     *float64 `json:"step,omitempty"`
	Keys     []string `json:"keys"`
}

type AttributeSpec struct {
	Key         string           `json:"key"`
	DisplayName string           `json:"display_name"`
	Category    string           `json:"category"`
	Writable    bool             `json:"writable"`
	ValueRange  ValueRange       `json:"value_range"`
	DeviceClass string           `json:"device_class,omitempty"`
	Unit        string           `json:"unit,omitempty"`
	StateClass  string           `json:"state_class,omitempty"`
	Comparison  *ComparisonTable `json:"comparison,omitempty"`
	Composite   *CompositeExt    `json:"composite,omitempty"`
}

func (a AttributeSpec) IsComposite() bool {
	return a.Composite != nil
}
