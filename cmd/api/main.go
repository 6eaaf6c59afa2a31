package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/haier2mqtt/internal/adapter/actor"
	"github.com/berfenger/haier2mqtt/internal/config"
	"github.com/berfenger/haier2mqtt/internal/core/actor"
	"github.com/berfenger/haier2mqtt/internal/core/domain"
	"github.com/berfenger/haier2mqtt/internal/core/service"
	"github.com/berfenger/haier2mqtt/internal/server"
	"github.com/berfenger/haier2mqtt/internal/store"
	"github.com/berfenger/haier2mqtt/internal/util/actorutil"
	"github.com/berfenger/haier2mqtt/pkg/haier"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// persistent store
	blobStore, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Fatal("cannot open store", zap.String("path", cfg.Store.Path), zap.Error(err))
	}
	defer blobStore.Close()

	// cloud client
	requestTimeout := time.Duration(cfg.Cloud.RequestTimeoutMillis) * time.Millisecond
	client := haier.NewClient(cfg.Account.ClientId, cfg.Account.Token,
		haier.WithHTTPClient(&http.Client{Timeout: requestTimeout}),
		haier.WithModelCacheTTL(time.Duration(cfg.Cloud.ModelCacheTTLMinutes)*time.Minute),
		haier.WithLogger(logger))
	defer client.Close()

	keeper := service.NewTokenKeeper(client, blobStore, domain.AccountToken{
		Token:        cfg.Account.Token,
		RefreshToken: cfg.Account.RefreshToken,
		ExpiresAt:    cfg.Account.ExpiresAt,
	}, logger)
	filters := service.NewFilters(deviceFilterFromConfig(cfg.DeviceFilter), entityFiltersFromConfig(cfg.EntityFilters),
		cfg.Account.DefaultLoadAllEntity)
	guard := service.NewSessionGuard()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg,
			cloudActorProvider(cfg, client, blobStore, keeper, filters, logger),
			mqttActorProvider(cfg, logger),
			liveSyncActorProvider(cfg, client, guard, logger),
			logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return
	}

	// periodic token revalidation
	sched, err := startTokenRevalidation(cfg, ctx, pid)
	if err != nil {
		logger.Fatal("cannot schedule token revalidation", zap.Error(err))
	}

	server := server.NewServer(*cfg, ctx, pid, blobStore)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	sched.Stop()
	_ = ctx.StopFuture(pid).Wait()
	as.Shutdown()
}

func startTokenRevalidation(cfg *config.Config, root *pactor.RootContext, master *pactor.PID) (quartz.Scheduler, error) {
	sched, err := quartz.NewStdScheduler()
	if err != nil {
		return nil, err
	}
	sched.Start(context.Background())

	revalidate := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		root.Send(master, domain.RevalidateTokenRequest{})
		return true, nil
	})
	interval := time.Duration(cfg.Token.RevalidateIntervalMinutes) * time.Minute
	err = sched.ScheduleJob(quartz.NewJobDetail(revalidate, quartz.NewJobKey("revalidate_token")),
		quartz.NewSimpleTrigger(interval))
	if err != nil {
		sched.Stop()
		return nil, err
	}
	return sched, nil
}

func initConfig() (*config.Config, error) {

	// alias PORT => HAIER_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("HAIER_PORT", port)
	}

	setConfigDefaults()

	// HAIER_ACCOUNT_CLIENT_ID => account.client_id
	viper.SetEnvPrefix("haier")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check account and filters
	if cfg.Account.ClientId == "" {
		return nil, errors.New("config param account.client_id is required")
	}
	if err := config.CheckFilterType(cfg.DeviceFilter.FilterType); err != nil {
		return nil, fmt.Errorf("config param device_filter.filter_type: %w", err)
	}
	for i, f := range cfg.EntityFilters {
		if err := config.CheckFilterType(f.FilterType); err != nil {
			return nil, fmt.Errorf("config param entity_filters[%d].filter_type: %w", i, err)
		}
	}

	// check bounds
	if cfg.LiveSync.ReconnectDelayMillis < 1000 {
		return nil, errors.New("config param livesync.reconnect_delay_millis should be >= 1000")
	}
	if cfg.LiveSync.HeartbeatIntervalMillis < 5000 {
		return nil, errors.New("config param livesync.heartbeat_interval_millis should be >= 5000")
	}
	if cfg.Token.RevalidateIntervalMinutes < 1 {
		return nil, errors.New("config param token.revalidate_interval_minutes should be >= 1")
	}
	if cfg.Cloud.InitConcurrency < 1 {
		return nil, errors.New("config param cloud.init_concurrency should be >= 1")
	}

	return &cfg, nil
}

func deviceFilterFromConfig(cfg config.DeviceFilterConfig) service.DeviceFilter {
	return service.DeviceFilter{
		FilterType:    cfg.FilterType,
		TargetDevices: cfg.TargetDevices,
	}
}

func entityFiltersFromConfig(cfgs []config.EntityFilterConfig) []service.EntityFilter {
	filters := make([]service.EntityFilter, 0, len(cfgs))
	for _, c := range cfgs {
		filters = append(filters, service.EntityFilter{
			DeviceId:       c.DeviceId,
			FilterType:     c.FilterType,
			TargetEntities: c.TargetEntities,
		})
	}
	return filters
}

func cloudActorProvider(cfg *config.Config, client *haier.Client, blobStore *store.SQLiteStore,
	keeper *service.TokenKeeper, filters *service.Filters, logger *zap.Logger) actor.CloudActorProvider {
	return func() *adactor.CloudActor {
		return adactor.NewCloudActor(client, blobStore, keeper, filters, adactor.CloudConfig{
			InitConcurrency: cfg.Cloud.InitConcurrency,
			RequestTimeout:  time.Duration(cfg.Cloud.RequestTimeoutMillis) * time.Millisecond,
		}, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func liveSyncActorProvider(cfg *config.Config, client *haier.Client, guard *service.SessionGuard,
	logger *zap.Logger) actor.LiveSyncActorProvider {
	return func(devices []*domain.DeviceModel, es *eventstream.EventStream) *adactor.LiveSyncActor {
		return adactor.NewLiveSyncActor(client, devices, guard, es, adactor.LiveSyncConfig{
			ReconnectDelay:    time.Duration(cfg.LiveSync.ReconnectDelayMillis) * time.Millisecond,
			HeartbeatInterval: time.Duration(cfg.LiveSync.HeartbeatIntervalMillis) * time.Millisecond,
		}, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.ha_discovery_enable", true)
	viper.SetDefault("mqtt.base_topic", "haier")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("account.client_id", "")
	viper.SetDefault("account.token", "")
	viper.SetDefault("account.refresh_token", "")
	viper.SetDefault("account.expires_at", 0)
	viper.SetDefault("account.default_load_all_entity", true)
	viper.SetDefault("device_filter.filter_type", service.FILTER_EXCLUDE)
	viper.SetDefault("livesync.reconnect_delay_millis", 30000)
	viper.SetDefault("livesync.heartbeat_interval_millis", 60000)
	viper.SetDefault("token.revalidate_interval_minutes", 60)
	viper.SetDefault("store.path", "haier.db")
	viper.SetDefault("cloud.init_concurrency", 4)
	viper.SetDefault("cloud.model_cache_ttl_minutes", 30)
	viper.SetDefault("cloud.request_timeout_millis", 10000)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Account.Token = "*redacted*"
	cfg.Account.RefreshToken = "*redacted*"
	slog.Info("Using", "config", cfg)
}
