package service

import (
	"slices"
)

const (
	FILTER_INCLUDE = "include"
	FILTER_EXCLUDE = "exclude"

	STORE_KEY_DEVICE_FILTER = "device_filter"
)

type DeviceFilter struct {
	FilterType    string   `json:"filter_type" mapstructure:"filter_type"`
	TargetDevices []string `json:"target_devices" mapstructure:"target_devices"`
}

type EntityFilter struct {
	DeviceId       string   `json:"device_id" mapstructure:"device_id"`
	FilterType     string   `json:"filter_type" mapstructure:"filter_type"`
	TargetEntities []string `json:"target_entities" mapstructure:"target_entities"`
}

// Filters decides which devices and which of their attributes are loaded.
type Filters struct {
	Device               DeviceFilter
	Entities             []EntityFilter
	DefaultLoadAllEntity bool
}

func NewFilters(device DeviceFilter, entities []EntityFilter, defaultLoadAllEntity bool) *Filters {
	if device.FilterType == "" {
		device.FilterType = FILTER_EXCLUDE
	}
	return &Filters{
		Device:               device,
		Entities:             entities,
		DefaultLoadAllEntity: defaultLoadAllEntity,
	}
}

func (f *Filters) AllowDevice(deviceId string) bool {
	listed := slices.Contains(f.Device.TargetDevices, deviceId)
	if f.Device.FilterType == FILTER_INCLUDE {
		return listed
	}
	return !listed
}

func (f *Filters) AllowEntity(deviceId, key string) bool {
	filter := f.entityFilter(deviceId)
	listed := slices.Contains(filter.TargetEntities, key)
	if filter.FilterType == FILTER_INCLUDE {
		return listed
	}
	return !listed
}

func (f *Filters) entityFilter(deviceId string) EntityFilter {
	for _, filter := range f.Entities {
		if filter.DeviceId == deviceId {
			if filter.FilterType == "" {
				filter.FilterType = f.defaultEntityFilterType()
			}
			return filter
		}
	}
	return EntityFilter{DeviceId: deviceId, FilterType: f.defaultEntityFilterType()}
}

func (f *Filters) defaultEntityFilterType() string {
	if f.DefaultLoadAllEntity {
		return FILTER_EXCLUDE
	}
	return FILTER_INCLUDE
}

// RemoveDevice stops loading a device: it is added to an exclude list or
// dropped from an include list. It reports whether the filter changed.
func (f *Filters) RemoveDevice(deviceId string) bool {
	if f.Device.FilterType == FILTER_INCLUDE {
		i := slices.Index(f.Device.TargetDevices, deviceId)
		if i < 0 {
			return false
		}
		f.Device.TargetDevices = slices.Delete(slices.Clone(f.Device.TargetDevices), i, i+1)
		return true
	}
	if slices.Contains(f.Device.TargetDevices, deviceId) {
		return false
	}
	f.Device.TargetDevices = append(slices.Clone(f.Device.TargetDevices), deviceId)
	return true
}
