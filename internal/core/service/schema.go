package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/berfenger/haier2mqtt/internal/core/domain"
)

const (
	SCHEMA_V1 = "v1"
	SCHEMA_V2 = "v2"
)

var ErrMalformedDescriptor = errors.New("malformed attribute descriptor")

// RawAttribute is the canonical form of one vendor attribute descriptor,
// whatever schema shape it was published in.
type RawAttribute struct {
	Name     string
	Desc     string
	Writable bool
	Readable bool
	HasValue bool
	Value    string
	Unit     string
	Range    domain.ValueRange
}

// flexString accepts a JSON string, number or boolean.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	*f = flexString(data)
	return nil
}

type v2Descriptor struct {
	Name       string          `json:"name"`
	Desc       string          `json:"desc"`
	Writable   bool            `json:"writable"`
	Readable   bool            `json:"readable"`
	Value      json.RawMessage `json:"value"`
	Unit       string          `json:"unit"`
	ValueRange *struct {
		Type     string `json:"type"`
		DataStep *struct {
			DataType string     `json:"dataType"`
			MinValue flexString `json:"minValue"`
			MaxValue flexString `json:"maxValue"`
			Step     flexString `json:"step"`
		} `json:"dataStep"`
		DataList []struct {
			Data flexString `json:"data"`
			Desc string     `json:"desc"`
		} `json:"dataList"`
	} `json:"valueRange"`
}

type v1Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Writable    bool            `json:"writable"`
	Readable    bool            `json:"readable"`
	Type        string          `json:"type"`
	Value       json.RawMessage `json:"value"`
	Variants    json.RawMessage `json:"variants"`
}

type v1StepVariants struct {
	MinValue flexString `json:"minValue"`
	MaxValue flexString `json:"maxValue"`
	Step     flexString `json:"step"`
	Unit     string     `json:"unit"`
}

type v1EnumVariant struct {
	StdValue    flexString `json:"stdValue"`
	Description string     `json:"description"`
}

// SchemaVersion probes the shape of a descriptor. A valueRange key means the
// newer shape, a type or variants key the older one. Anything else is read as
// the newer shape without a range.
func SchemaVersion(raw json.RawMessage) string {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return SCHEMA_V2
	}
	if _, ok := keys["valueRange"]; ok {
		return SCHEMA_V2
	}
	_, hasType := keys["type"]
	_, hasVariants := keys["variants"]
	if hasType || hasVariants {
		return SCHEMA_V1
	}
	return SCHEMA_V2
}

// NormalizeSchema converts one raw descriptor into its canonical form.
func NormalizeSchema(raw json.RawMessage) (RawAttribute, error) {
	switch SchemaVersion(raw) {
	case SCHEMA_V1:
		return normalizeV1(raw)
	default:
		return normalizeV2(raw)
	}
}

func normalizeV2(raw json.RawMessage) (RawAttribute, error) {
	var d v2Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return RawAttribute{}, fmt.Errorf("%w: %s", ErrMalformedDescriptor, err)
	}
	if d.Name == "" {
		return RawAttribute{}, fmt.Errorf("%w: missing name", ErrMalformedDescriptor)
	}
	attr := RawAttribute{
		Name:     d.Name,
		Desc:     d.Desc,
		Writable: d.Writable,
		Readable: d.Readable,
		Unit:     d.Unit,
		Range:    domain.NoRange(),
	}
	attr.HasValue, attr.Value = rawValue(d.Value)

	if d.ValueRange == nil {
		return attr, nil
	}
	switch strings.ToUpper(d.ValueRange.Type) {
	case "STEP":
		if d.ValueRange.DataStep == nil {
			return RawAttribute{}, fmt.Errorf("%w: %s: STEP range without dataStep", ErrMalformedDescriptor, d.Name)
		}
		step, err := parseStep(d.ValueRange.DataStep.MinValue, d.ValueRange.DataStep.MaxValue,
			d.ValueRange.DataStep.Step, d.ValueRange.DataStep.DataType)
		if err != nil {
			return RawAttribute{}, fmt.Errorf("%w: %s: %s", ErrMalformedDescriptor, d.Name, err)
		}
		attr.Range = domain.StepValueRange(step)
	case "LIST":
		options := make([]domain.ListOption, 0, len(d.ValueRange.DataList))
		for _, item := range d.ValueRange.DataList {
			options = append(options, domain.ListOption{Code: string(item.Data), Label: item.Desc})
		}
		attr.Range = domain.ListValueRange(options)
	}
	return attr, nil
}

func normalizeV1(raw json.RawMessage) (RawAttribute, error) {
	var d v1Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return RawAttribute{}, fmt.Errorf("%w: %s", ErrMalformedDescriptor, err)
	}
	if d.Name == "" {
		return RawAttribute{}, fmt.Errorf("%w: missing name", ErrMalformedDescriptor)
	}
	attr := RawAttribute{
		Name:     d.Name,
		Desc:     d.Description,
		Writable: d.Writable,
		Readable: d.Readable,
		Range:    domain.NoRange(),
	}
	attr.HasValue, attr.Value = rawValue(d.Value)

	variants := bytes.TrimSpace(d.Variants)
	isObject := len(variants) > 0 && variants[0] == '{'
	isArray := len(variants) > 0 && variants[0] == '['

	if isObject {
		var sv v1StepVariants
		if err := json.Unmarshal(variants, &sv); err != nil {
			return RawAttribute{}, fmt.Errorf("%w: %s: %s", ErrMalformedDescriptor, d.Name, err)
		}
		attr.Unit = sv.Unit
	}

	switch strings.ToLower(d.Type) {
	case "bool":
		attr.Range = domain.ListValueRange([]domain.ListOption{
			{Code: "false", Label: "false"},
			{Code: "true", Label: "true"},
		})
	case "int", "double":
		if !isObject {
			return attr, nil
		}
		var sv v1StepVariants
		if err := json.Unmarshal(variants, &sv); err != nil {
			return RawAttribute{}, fmt.Errorf("%w: %s: %s", ErrMalformedDescriptor, d.Name, err)
		}
		step, err := parseStep(sv.MinValue, sv.MaxValue, sv.Step, d.Type)
		if err != nil {
			return RawAttribute{}, fmt.Errorf("%w: %s: %s", ErrMalformedDescriptor, d.Name, err)
		}
		attr.Range = domain.StepValueRange(step)
	case "enum":
		if !isArray {
			return attr, nil
		}
		var items []v1EnumVariant
		if err := json.Unmarshal(variants, &items); err != nil {
			return RawAttribute{}, fmt.Errorf("%w: %s: %s", ErrMalformedDescriptor, d.Name, err)
		}
		options := make([]domain.ListOption, 0, len(items))
		for _, item := range items {
			options = append(options, domain.ListOption{Code: string(item.StdValue), Label: item.Description})
		}
		attr.Range = domain.ListValueRange(options)
	}
	return attr, nil
}

func rawValue(value json.RawMessage) (bool, string) {
	value = bytes.TrimSpace(value)
	if len(value) == 0 || bytes.Equal(value, []byte("null")) {
		return false, ""
	}
	var s flexString
	if err := json.Unmarshal(value, &s); err != nil {
		return true, string(value)
	}
	return true, string(s)
}

func parseStep(min, max, step flexString, dataType string) (domain.StepRange, error) {
	minValue, err := parseFloat(string(min))
	if err != nil {
		return domain.StepRange{}, fmt.Errorf("minValue: %w", err)
	}
	maxValue, err := parseFloat(string(max))
	if err != nil {
		return domain.StepRange{}, fmt.Errorf("maxValue: %w", err)
	}
	stepValue := 1.0
	if step != "" {
		stepValue, err = parseFloat(string(step))
		if err != nil {
			return domain.StepRange{}, fmt.Errorf("step: %w", err)
		}
	}
	return domain.StepRange{
		Min:      minValue,
		Max:      maxValue,
		Step:     stepValue,
		DataType: dataType,
	}, nil
}
