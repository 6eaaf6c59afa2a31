package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel      zapcore.Level
	MQTT          MQTTConfig           `mapstructure:"mqtt"`
	Account       AccountConfig        `mapstructure:"account"`
	DeviceFilter  DeviceFilterConfig   `mapstructure:"device_filter"`
	EntityFilters []EntityFilterConfig `mapstructure:"entity_filters"`
	LiveSync      LiveSyncConfig       `mapstructure:"livesync"`
	Token         TokenConfig          `mapstructure:"token"`
	Store         StoreConfig          `mapstructure:"store"`
	Cloud         CloudConfig          `mapstructure:"cloud"`
	Port          uint                 `mapstructure:"port"`
	HttpLog       bool                 `mapstructure:"http_log"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type AccountConfig struct {
	ClientId             string `mapstructure:"client_id"`
	Token                string
	RefreshToken         string `mapstructure:"refresh_token"`
	ExpiresAt            int64  `mapstructure:"expires_at"`
	DefaultLoadAllEntity bool   `mapstructure:"default_load_all_entity"`
}

type DeviceFilterConfig struct {
	FilterType    string   `mapstructure:"filter_type"`
	TargetDevices []string `mapstructure:"target_devices"`
}

type EntityFilterConfig struct {
	DeviceId       string   `mapstructure:"device_id"`
	FilterType     string   `mapstructure:"filter_type"`
	TargetEntities []string `mapstructure:"target_entities"`
}

type LiveSyncConfig struct {
	ReconnectDelayMillis    uint32 `mapstructure:"reconnect_delay_millis"`
	HeartbeatIntervalMillis uint32 `mapstructure:"heartbeat_interval_millis"`
}

type TokenConfig struct {
	RevalidateIntervalMinutes uint32 `mapstructure:"revalidate_interval_minutes"`
}

type StoreConfig struct {
	Path string
}

type CloudConfig struct {
	InitConcurrency      int    `mapstructure:"init_concurrency"`
	ModelCacheTTLMinutes uint32 `mapstructure:"model_cache_ttl_minutes"`
	RequestTimeoutMillis uint32 `mapstructure:"request_timeout_millis"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

func CheckFilterType(filterType string) error {
	switch filterType {
	case "include", "exclude":
		return nil
	}
	return errors.New("invalid filter type. must be include or exclude")
}
