package util

import (
	"github.com/berfenger/haier2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "haier",
			HADiscoveryTopic: "homeassistant",
		},
		Account: config.AccountConfig{
			ClientId:             "test-client",
			Token:                "test-token",
			RefreshToken:         "test-refresh",
			DefaultLoadAllEntity: true,
		},
		DeviceFilter: config.DeviceFilterConfig{
			FilterType: "exclude",
		},
		LiveSync: config.LiveSyncConfig{
			ReconnectDelayMillis:    500,
			HeartbeatIntervalMillis: 60000,
		},
		Token: config.TokenConfig{
			RevalidateIntervalMinutes: 60,
		},
		Store: config.StoreConfig{
			Path: ":memory:",
		},
		Cloud: config.CloudConfig{
			InitConcurrency:      2,
			ModelCacheTTLMinutes: 30,
			RequestTimeoutMillis: 2000,
		},
		Port: 8080,
	}
}
