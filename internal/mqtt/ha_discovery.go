package mqtt

import (
	"fmt"

	"github.com/berfenger/haier2mqtt/internal/core/domain"
)

const (
	availabilityTemplate = "{{ 'online' if value_json.available else 'offline' }}"
	AVAILABILITY_ALL     = "all"
)

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice         `json:"device"`
	StateTopic        string                    `json:"state_topic,omitempty"`
	ValueTemplate     string                    `json:"value_template,omitempty"`
	CommandTopic      string                    `json:"command_topic,omitempty"`
	StateClass        string                    `json:"state_class,omitempty"`
	DeviceClass       string                    `json:"device_class,omitempty"`
	UnitOfMeasurement string                    `json:"unit_of_measurement,omitempty"`
	AvTopic           string                    `json:"availability_topic,omitempty"`
	Availability      []HADiscoveryAvailability `json:"availability,omitempty"`
	AvMode            string                    `json:"availability_mode,omitempty"`
	EntityCategory    string                    `json:"entity_category,omitempty"`
	Name              string                    `json:"name"`
	UniqueId          string                    `json:"unique_id"`
	Platform          string                    `json:"platform"`
	EnabledByDefault  *bool                     `json:"enabled_by_default,omitempty"`
	PayloadOn         string                    `json:"payload_on,omitempty"`
	PayloadOff        string                    `json:"payload_off,omitempty"`
	Icon              string                    `json:"icon,omitempty"`
	Options           []string                  `json:"options,omitempty"`

	// number
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Step *float64 `json:"step,omitempty"`
	Mode string   `json:"mode,omitempty"`

	// climate and water heater
	CurrentTemperatureTopic    string   `json:"current_temperature_topic,omitempty"`
	CurrentTemperatureTemplate string   `json:"current_temperature_template,omitempty"`
	CurrentHumidityTopic       string   `json:"current_humidity_topic,omitempty"`
	CurrentHumidityTemplate    string   `json:"current_humidity_template,omitempty"`
	TemperatureStateTopic      string   `json:"temperature_state_topic,omitempty"`
	TemperatureStateTemplate   string   `json:"temperature_state_template,omitempty"`
	TemperatureCommandTopic    string   `json:"temperature_command_topic,omitempty"`
	ModeStateTopic             string   `json:"mode_state_topic,omitempty"`
	ModeStateTemplate          string   `json:"mode_state_template,omitempty"`
	ModeCommandTopic           string   `json:"mode_command_topic,omitempty"`
	Modes                      []string `json:"modes,omitempty"`
	FanModeStateTopic          string   `json:"fan_mode_state_topic,omitempty"`
	FanModeStateTemplate       string   `json:"fan_mode_state_template,omitempty"`
	FanModeCommandTopic        string   `json:"fan_mode_command_topic,omitempty"`
	FanModes                   []string `json:"fan_modes,omitempty"`
	SwingModeStateTopic        string   `json:"swing_mode_state_topic,omitempty"`
	SwingModeStateTemplate     string   `json:"swing_mode_state_template,omitempty"`
	SwingModeCommandTopic      string   `json:"swing_mode_command_topic,omitempty"`
	SwingModes                 []string `json:"swing_modes,omitempty"`
	MinTemp                    *float64 `json:"min_temp,omitempty"`
	MaxTemp                    *float64 `json:"max_temp,omitempty"`
	TempStep                   *float64 `json:"temp_step,omitempty"`
	TemperatureUnit            string   `json:"temperature_unit,omitempty"`

	// cover
	StateOpen        string `json:"state_open,omitempty"`
	StateClosed      string `json:"state_closed,omitempty"`
	PayloadOpen      string `json:"payload_open,omitempty"`
	PayloadClose     string `json:"payload_close,omitempty"`
	PayloadStop      string `json:"payload_stop,omitempty"`
	PositionTopic    string `json:"position_topic,omitempty"`
	PositionTemplate string `json:"position_template,omitempty"`
	SetPositionTopic string `json:"set_position_topic,omitempty"`
}

type HADiscoveryAvailability struct {
	Topic         string `json:"topic"`
	ValueTemplate string `json:"value_template,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

func (c *MQTTClient) HADiscoveryTopic(entity domain.EntityDescriptor) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", c.cfg.HADiscoveryTopic, entity.Component, entity.Device.Id, entity.UniqueId)
}

// BridgeEntityToHADiscoveryMessage describes the bridge and gateway connectivity sensors.
func BridgeEntityToHADiscoveryMessage(client *MQTTClient, entity domain.EntityDescriptor) HADiscoveryConfig {
	stateTopic := client.BridgeStateTopic()
	if entity.Key == domain.ENTITY_ID_GATEWAY_STATE {
		stateTopic = client.GatewayStateTopic()
	}
	return HADiscoveryConfig{
		Device:         device(entity.Device),
		StateTopic:     stateTopic,
		DeviceClass:    entity.DeviceClass,
		EntityCategory: entity.Category,
		AvTopic:        client.BridgeStateTopic(),
		Name:           entity.Name,
		UniqueId:       entity.UniqueId,
		Platform:       "mqtt",
		PayloadOn:      MQTT_PAYLOAD_ONLINE,
		PayloadOff:     MQTT_PAYLOAD_OFFLINE,
	}
}

// EntityToHADiscoveryMessage describes an appliance entity. It is available
// only while the bridge, the cloud gateway and the entity itself are.
func EntityToHADiscoveryMessage(client *MQTTClient, entity domain.EntityDescriptor) HADiscoveryConfig {
	stateTopic := client.EntityStateTopic(entity.Component, entity.UniqueId)
	command := func(field string) string {
		return client.EntityCommandTopic(entity.Component, entity.UniqueId, field)
	}
	disConfig := HADiscoveryConfig{
		Device: device(entity.Device),
		Availability: []HADiscoveryAvailability{
			{Topic: client.BridgeStateTopic()},
			{Topic: client.GatewayStateTopic()},
			{Topic: stateTopic, ValueTemplate: availabilityTemplate},
		},
		AvMode:         AVAILABILITY_ALL,
		EntityCategory: entity.Category,
		Name:           entity.Name,
		UniqueId:       entity.UniqueId,
		Icon:           entity.Icon,
		Platform:       "mqtt",
	}

	switch entity.Component {
	case domain.CATEGORY_SENSOR:
		disConfig.StateTopic = stateTopic
		disConfig.ValueTemplate = jsonField("value")
		disConfig.DeviceClass = entity.DeviceClass
		disConfig.UnitOfMeasurement = entity.Unit
		disConfig.StateClass = entity.StateClass
		disConfig.Options = entity.Options
	case domain.CATEGORY_BINARY_SENSOR:
		disConfig.StateTopic = stateTopic
		disConfig.ValueTemplate = jsonField("state")
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
	case domain.CATEGORY_SWITCH:
		disConfig.StateTopic = stateTopic
		disConfig.ValueTemplate = jsonField("state")
		disConfig.CommandTopic = command("state")
		disConfig.DeviceClass = entity.DeviceClass
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
	case domain.CATEGORY_NUMBER:
		disConfig.StateTopic = stateTopic
		disConfig.ValueTemplate = jsonField("value")
		disConfig.CommandTopic = command("value")
		disConfig.DeviceClass = entity.DeviceClass
		disConfig.UnitOfMeasurement = entity.Unit
		disConfig.Min, disConfig.Max, disConfig.Step = entity.Min, entity.Max, entity.Step
		disConfig.Mode = entity.Mode
	case domain.CATEGORY_SELECT:
		disConfig.StateTopic = stateTopic
		disConfig.ValueTemplate = jsonField("option")
		disConfig.CommandTopic = command("option")
		disConfig.Options = entity.Options
	case domain.CATEGORY_CLIMATE:
		disConfig.CurrentTemperatureTopic = stateTopic
		disConfig.CurrentTemperatureTemplate = jsonField("current_temperature")
		disConfig.CurrentHumidityTopic = stateTopic
		disConfig.CurrentHumidityTemplate = jsonField("current_humidity")
		disConfig.TemperatureStateTopic = stateTopic
		disConfig.TemperatureStateTemplate = jsonField("temperature")
		disConfig.TemperatureCommandTopic = command("temperature")
		disConfig.ModeStateTopic = stateTopic
		disConfig.ModeStateTemplate = jsonField("mode")
		disConfig.ModeCommandTopic = command("mode")
		disConfig.Modes = entity.HVACModes
		disConfig.FanModeStateTopic = stateTopic
		disConfig.FanModeStateTemplate = jsonField("fan_mode")
		disConfig.FanModeCommandTopic = command("fan_mode")
		disConfig.FanModes = entity.FanModes
		disConfig.SwingModeStateTopic = stateTopic
		disConfig.SwingModeStateTemplate = jsonField("swing_mode")
		disConfig.SwingModeCommandTopic = command("swing_mode")
		disConfig.SwingModes = entity.SwingModes
		disConfig.MinTemp, disConfig.MaxTemp, disConfig.TempStep = entity.Min, entity.Max, entity.Step
		disConfig.TemperatureUnit = "C"
	case domain.CATEGORY_WATER_HEATER:
		disConfig.CurrentTemperatureTopic = stateTopic
		disConfig.CurrentTemperatureTemplate = jsonField("current_temperature")
		disConfig.TemperatureStateTopic = stateTopic
		disConfig.TemperatureStateTemplate = jsonField("temperature")
		disConfig.TemperatureCommandTopic = command("temperature")
		disConfig.ModeStateTopic = stateTopic
		disConfig.ModeStateTemplate = jsonField("mode")
		disConfig.ModeCommandTopic = command("mode")
		disConfig.Modes = entity.OperationModes
		disConfig.MinTemp, disConfig.MaxTemp = entity.Min, entity.Max
		disConfig.TemperatureUnit = "C"
	case domain.CATEGORY_COVER:
		disConfig.StateTopic = stateTopic
		disConfig.ValueTemplate = jsonField("state")
		disConfig.CommandTopic = command("state")
		disConfig.StateOpen = "open"
		disConfig.StateClosed = "closed"
		disConfig.PayloadOpen = "OPEN"
		disConfig.PayloadClose = "CLOSE"
		disConfig.PayloadStop = "STOP"
		disConfig.PositionTopic = stateTopic
		disConfig.PositionTemplate = jsonField("position")
		disConfig.SetPositionTopic = command("position")
	}
	return disConfig
}

func jsonField(field string) string {
	return fmt.Sprintf("{{ value_json.%s }}", field)
}

func device(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}
