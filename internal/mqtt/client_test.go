package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/berfenger/haier2mqtt/internal/config"
	"github.com/berfenger/haier2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityCommandParse(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	r := commandExtractor("haier")
	cmd, err := parseCommand(r, "haier/climate/haier_dc330d0000aa_climate/fan_mode/set", []byte(" high \n"))
	require.NoError(err)
	assert.Equal(domain.CATEGORY_CLIMATE, cmd.Component)
	assert.Equal("haier_dc330d0000aa_climate", cmd.UniqueId)
	assert.Equal("fan_mode", cmd.Field)
	assert.Equal("high", cmd.Payload)

	cmd, err = parseCommand(r, "haier/water_heater/haier_x_water_heater/away_mode/set", []byte("ON"))
	require.NoError(err)
	assert.Equal(domain.CATEGORY_WATER_HEATER, cmd.Component)
	assert.Equal("away_mode", cmd.Field)
}

func TestEntityCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	r := commandExtractor("haier")
	for _, topic := range []string{
		"haier/switch/haier_x_onoffstatus/state",
		"haier/light/haier_x_onoffstatus/state/set",
		"other/switch/haier_x_onoffstatus/state/set",
		"prefix/haier/switch/haier_x_onoffstatus/state/set",
		"haier/switch/Haier_X/state/set",
	} {
		_, err := parseCommand(r, topic, []byte("ON"))
		assert.Error(err, topic)
	}
}

func TestEntityTopics(t *testing.T) {

	assert := assert.New(t)

	cfg := config.Config{MQTT: config.MQTTConfig{BaseTopic: "haier", HADiscoveryTopic: "homeassistant"}}
	client := CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)

	assert.Equal("haier/bridge/state", client.BridgeStateTopic())
	assert.Equal("haier/gateway/state", client.GatewayStateTopic())
	assert.Equal("haier/select/haier_a_b/state", client.EntityStateTopic("select", "haier_a_b"))
	assert.Equal("haier/select/haier_a_b/option/set", client.EntityCommandTopic("select", "haier_a_b", "option"))
	assert.Equal("haier/+/+/+/set", client.commandTopic())
}

func TestDiscoveryMessages(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	cfg := config.Config{MQTT: config.MQTTConfig{BaseTopic: "haier", HADiscoveryTopic: "homeassistant"}}
	client := CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)

	min, max, step := 16.0, 30.0, 0.5
	climate := domain.EntityDescriptor{
		Device:     domain.Device{Id: "dc330d0000aa", Name: "Living room", Manufacturer: domain.MANUFACTURER_HAIER},
		Component:  domain.CATEGORY_CLIMATE,
		DeviceId:   "DC330D0000AA",
		Key:        "climate",
		Name:       "Climate",
		UniqueId:   "haier_dc330d0000aa_climate",
		Min:        &min,
		Max:        &max,
		Step:       &step,
		HVACModes:  []string{"off", "auto"},
		FanModes:   []string{"auto", "low"},
		SwingModes: []string{"off", "both"},
	}
	assert.Equal("homeassistant/climate/dc330d0000aa/haier_dc330d0000aa_climate/config", client.HADiscoveryTopic(climate))

	msg := EntityToHADiscoveryMessage(client, climate)
	assert.Equal("haier/climate/haier_dc330d0000aa_climate/mode/set", msg.ModeCommandTopic)
	assert.Equal("{{ value_json.fan_mode }}", msg.FanModeStateTemplate)
	assert.Equal([]string{"off", "both"}, msg.SwingModes)
	assert.Equal(AVAILABILITY_ALL, msg.AvMode)
	require.Len(msg.Availability, 3)
	assert.Equal("haier/gateway/state", msg.Availability[1].Topic)
	assert.Equal("haier/climate/haier_dc330d0000aa_climate/state", msg.Availability[2].Topic)

	raw, err := json.Marshal(msg)
	require.NoError(err)
	var decoded map[string]any
	require.NoError(json.Unmarshal(raw, &decoded))
	assert.Equal(16.0, decoded["min_temp"])
	assert.NotContains(decoded, "command_topic")

	bridge := domain.BridgeEntities(domain.BridgeDevice("haier"))
	gw := BridgeEntityToHADiscoveryMessage(client, bridge[1])
	assert.Equal("haier/gateway/state", gw.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ONLINE, gw.PayloadOn)
}
