package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/carlmjohnson/versioninfo"
)

const (
	ENTITY_ID_BRIDGE_STATE    = "bridge"
	ENTITY_ID_GATEWAY_STATE   = "gateway"
	DEVICE_CLASS_CONNECTIVITY = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC   = "diagnostic"
	NUMBER_MODE_BOX           = "box"
	NUMBER_MODE_SLIDER        = "slider"
	MANUFACTURER_HAIER        = "Haier"
)

var uniqueIdSanitizer = regexp.MustCompile("[^a-z0-9_]")

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

// EntityDescriptor is everything the host needs to register one entity.
type EntityDescriptor struct {
	Device      Device
	Component   string
	DeviceId    string
	Key         string
	Name        string
	UniqueId    string
	DeviceClass string
	Unit        string
	StateClass  string
	Category    string
	Icon        string

	// select options and enum sensor states
	Options []string

	// number, climate, water heater and cover bounds
	Min  *float64
	Max  *float64
	Step *float64
	Mode string

	HVACModes      []string
	FanModes       []string
	SwingModes     []string
	OperationModes []string
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("haier_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "haier2mqtt",
		Model:        "Haier cloud bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Haier bridge %s", md5HashShort(baseTopic)),
	}
}

func ApplianceDevice(info DeviceInfo, viaDevice string) Device {
	name := info.Name
	if name == "" {
		name = info.Id
	}
	return Device{
		Id:           strings.ToLower(info.Id),
		Name:         name,
		Model:        info.ProductName,
		Manufacturer: MANUFACTURER_HAIER,
		ViaDevice:    viaDevice,
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

// BridgeEntities are the connectivity sensors of the bridge itself.
func BridgeEntities(bridgeDevice Device) []EntityDescriptor {
	return []EntityDescriptor{
		{
			Device:      bridgeDevice,
			Component:   CATEGORY_BINARY_SENSOR,
			DeviceId:    bridgeDevice.Id,
			Key:         ENTITY_ID_BRIDGE_STATE,
			Name:        "Connection state",
			DeviceClass: DEVICE_CLASS_CONNECTIVITY,
			Category:    ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:    fmt.Sprintf("uid_%s_%s", bridgeDevice.Id, ENTITY_ID_BRIDGE_STATE),
		},
		{
			Device:      IdDevice(bridgeDevice),
			Component:   CATEGORY_BINARY_SENSOR,
			DeviceId:    bridgeDevice.Id,
			Key:         ENTITY_ID_GATEWAY_STATE,
			Name:        "Cloud gateway",
			DeviceClass: DEVICE_CLASS_CONNECTIVITY,
			Category:    ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:    fmt.Sprintf("uid_%s_%s", bridgeDevice.Id, ENTITY_ID_GATEWAY_STATE),
		},
	}
}

// EntityUniqueId is haier_<device>_<key>, lower-cased, anything outside [a-z0-9_] replaced by '_'.
func EntityUniqueId(deviceId, key string) string {
	raw := strings.ToLower(fmt.Sprintf("haier_%s_%s", deviceId, key))
	return uniqueIdSanitizer.ReplaceAllString(raw, "_")
}

func md5HashShort(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])[0:8]
}
