package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/berfenger/haier2mqtt/internal/core/domain"

	"go.uber.org/zap"
)

var ErrInvalidValue = errors.New("invalid attribute value")

// ValueCodec converts between wire values and displayed values of one attribute.
type ValueCodec struct {
	logger *zap.Logger
}

func NewValueCodec(logger *zap.Logger) *ValueCodec {
	return &ValueCodec{logger: logger}
}

// Decode turns a raw wire value into its displayed value.
func (c *ValueCodec) Decode(spec domain.AttributeSpec, raw string) (any, error) {
	if spec.Comparison != nil {
		label, ok := spec.Comparison.Label(raw)
		if !ok {
			c.logger.Warn("codec: value missing from comparison table",
				zap.String("attribute", spec.Key), zap.String("value", raw))
			return raw, nil
		}
		return label, nil
	}

	switch spec.Category {
	case domain.CATEGORY_SWITCH, domain.CATEGORY_BINARY_SENSOR:
		return TryReadAsBool(raw)
	case domain.CATEGORY_NUMBER:
		v, err := parseFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidValue, spec.Key, raw)
		}
		return v, nil
	case domain.CATEGORY_SENSOR:
		if spec.DeviceClass != "" || spec.Unit != "" {
			if v, err := parseFloat(raw); err == nil {
				return v, nil
			}
		}
	}
	return raw, nil
}

// Encode turns a displayed value into the value written to the cloud.
func (c *ValueCodec) Encode(spec domain.AttributeSpec, value any) (any, error) {
	if spec.Comparison != nil {
		label := fmt.Sprint(value)
		code, ok := spec.Comparison.Code(label)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no option %q", ErrInvalidValue, spec.Key, label)
		}
		return code, nil
	}

	switch spec.Category {
	case domain.CATEGORY_SWITCH, domain.CATEGORY_BINARY_SENSOR:
		return TryReadAsBool(value)
	case domain.CATEGORY_NUMBER:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := parseFloat(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s=%q", ErrInvalidValue, spec.Key, v)
			}
			return f, nil
		}
		return nil, fmt.Errorf("%w: %s=%v", ErrInvalidValue, spec.Key, value)
	}
	return value, nil
}

// TryReadAsBool accepts a bool or the exact strings "true" and "false".
func TryReadAsBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch v {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %v is not a boolean", ErrInvalidValue, value)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
