package actor

import (
	"context"
	"fmt"
	"log"
	"time"

	adactor "github.com/berfenger/haier2mqtt/internal/adapter/actor"
	"github.com/berfenger/haier2mqtt/internal/config"
	"github.com/berfenger/haier2mqtt/internal/core/domain"
	"github.com/berfenger/haier2mqtt/internal/core/entity"
	"github.com/berfenger/haier2mqtt/internal/core/service"
	. "github.com/berfenger/haier2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	MASTER_STATE_LOADING = "loading"
	MASTER_STATE_RUNNING = "running"

	revalidateRequestTimeout = time.Minute
	loadRequestTimeout       = 3 * time.Minute
	removeRequestTimeout     = 10 * time.Second
	commandTimeout           = 10 * time.Second
	childHealthTimeout       = 500 * time.Millisecond
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type CloudActorProvider func() *adactor.CloudActor

type LiveSyncActorProvider func([]*domain.DeviceModel, *eventstream.EventStream) *adactor.LiveSyncActor

// MasterOfPuppetsActor supervises the cloud, MQTT and live-sync actors, binds
// the loaded devices to their entities and routes commands back to them.
type MasterOfPuppetsActor struct {
	config    config.Config
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler
	phase     string

	currentHealthCheck    healthCheckResult
	eventStream           *eventstream.EventStream
	codec                 *service.ValueCodec
	bridgeDevice          domain.Device
	cloudActor            *actor.PID
	mqttActor             *actor.PID
	liveSyncActor         *actor.PID
	cloudActorProvider    CloudActorProvider
	mqttActorProvider     MQTTActorProvider
	liveSyncActorProvider LiveSyncActorProvider

	entities      map[string]entity.Entity
	bindings      []func()
	published     []domain.EntityDescriptor
	reloadPending bool
	logger        *zap.Logger
}

type retryLoad struct {
}

type commandResult struct {
	entity entity.Entity
	field  string
	err    error
}

type healthCheckResult struct {
	healthy        map[string]bool
	checksReceived int
	respondTo      *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, cloudActorProvider CloudActorProvider, mqttActorProvider MQTTActorProvider,
	liveSyncActorProvider LiveSyncActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:                config,
		behavior:              actor.NewBehavior(),
		stash:                 &Stash{},
		logger:                ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:           &eventstream.EventStream{},
		codec:                 service.NewValueCodec(logger),
		bridgeDevice:          domain.BridgeDevice(config.MQTT.BaseTopic),
		cloudActorProvider:    cloudActorProvider,
		mqttActorProvider:     mqttActorProvider,
		liveSyncActorProvider: liveSyncActorProvider,
		entities:              map[string]entity.Entity{},
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start Cloud child
		cloudActorPID, err := state.startCloudActor(ctx)
		if err != nil {
			panic(err)
		}
		state.cloudActor = cloudActorPID

		// a stale token is refreshed before the first device load
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.cloudActor, domain.RevalidateTokenRequest{}, revalidateRequestTimeout), func(err error) any {
			return domain.RevalidateTokenResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			}
		})
		state.phase = MASTER_STATE_LOADING
		state.behavior.Become(state.LoadingReceive)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) LoadingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.RevalidateTokenResponse:
		if msg.HasResponseError() {
			state.logger.Warn("master@loading token revalidation failed", zap.Error(msg.GetResponseError()))
		}
		state.requestDevices(ctx)
	case retryLoad:
		state.requestDevices(ctx)
	case domain.LoadDevicesResponse:
		if msg.HasResponseError() {
			delay := time.Duration(state.config.LiveSync.ReconnectDelayMillis) * time.Millisecond
			state.logger.Error("master@loading cannot load devices", zap.Error(msg.GetResponseError()),
				zap.Duration("retry_in", delay))
			state.scheduler.SendOnce(delay, ctx.Self(), retryLoad{})
			return
		}
		state.startDevices(ctx, msg.Devices)
		state.phase = MASTER_STATE_RUNNING
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
		if state.reloadPending {
			state.reloadPending = false
			state.reload(ctx)
		}
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MASTER,
			Healthy: false,
			State:   state.phase,
		})
	case domain.LiveSyncStatusRequest:
		ForRequest(msg).Respond(ctx, domain.LiveSyncStatusResponse{State: adactor.LIVESYNC_STATE_STOPPED})
	case adactor.MQTTReady:
		state.announceGateway(ctx)
	case *actor.Terminated, *actor.ReceiveTimeout:
	case *actor.Stopping:
		state.unbindDevices()
	default:
		state.logger.Debug("master@loading stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range map[string]*actor.PID{
			domain.ACTOR_ID_MQTT:     state.mqttActor,
			domain.ACTOR_ID_CLOUD:    state.cloudActor,
			domain.ACTOR_ID_LIVESYNC: state.liveSyncActor,
		} {
			if pid == nil {
				ctx.Send(ctx.Self(), domain.ActorHealthResponse{Id: id, Healthy: false})
				continue
			}
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, childHealthTimeout), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			state.applyCommand(ctx, msg.Command.Component, msg.Command.UniqueId, entity.Command{
				Field:   msg.Command.Field,
				Payload: msg.Command.Payload,
			})
		}
	case commandResult:
		if msg.err != nil {
			state.logger.Warn("master@default command failed", zap.String("entity", msg.entity.UniqueId()),
				zap.String("field", msg.field), zap.Error(msg.err))
			return
		}
		// show the written value until the device reports back
		if current, ok := state.entities[msg.entity.UniqueId()]; ok && current == msg.entity {
			state.eventStream.Publish(msg.entity.State())
		}
	case domain.RevalidateTokenRequest:
		state.logger.Debug("master@default RevalidateTokenRequest")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.cloudActor, domain.RevalidateTokenRequest{}, revalidateRequestTimeout), func(err error) any {
			return domain.RevalidateTokenResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			}
		})
	case domain.RevalidateTokenResponse:
		if msg.HasResponseError() {
			state.logger.Error("master@default token revalidation failed", zap.Error(msg.GetResponseError()))
			return
		}
		if msg.Refreshed {
			state.logger.Info("master@default token refreshed, reloading")
			state.reload(ctx)
		}
	case domain.RemoveDeviceRequest:
		state.removeDevice(ctx, msg)
	case domain.LiveSyncStatusRequest:
		if state.liveSyncActor == nil {
			ForRequest(msg).Respond(ctx, domain.LiveSyncStatusResponse{State: adactor.LIVESYNC_STATE_STOPPED})
			return
		}
		ctx.Forward(state.liveSyncActor)
	case domain.LiveSyncStatusResponse:
		// answer to a gateway announcement
	case adactor.MQTTReady:
		state.announceGateway(ctx)
	case *actor.Terminated:
		state.logger.Debug("master@default child terminated", zap.String("who", msg.Who.Id))
	case *actor.ReceiveTimeout:
	case *actor.Stopping:
		state.unbindDevices()
	default:
		state.logger.Debug("master@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx, state.phase)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		state.currentHealthCheck.healthy[msg.Id] = msg.Healthy
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx, state.phase)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) requestDevices(ctx actor.Context) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.cloudActor, domain.LoadDevicesRequest{}, loadRequestTimeout), func(err error) any {
		return domain.LoadDevicesResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		}
	})
}

// startDevices builds and binds the entities of every loaded device, starts the
// live-sync session for them and publishes their discovery configs.
func (state *MasterOfPuppetsActor) startDevices(ctx actor.Context, devices []*domain.DeviceModel) {
	descriptors := domain.BridgeEntities(state.bridgeDevice)
	publish := func(evt domain.EntityStateEvent) {
		state.eventStream.Publish(evt)
	}
	for _, device := range devices {
		entities := entity.Build(device, state.bridgeDevice.Id, state.codec, state.logger)
		for _, e := range entities {
			state.entities[e.UniqueId()] = e
			descriptors = append(descriptors, e.Descriptor())
		}
		state.bindings = append(state.bindings, entity.Bind(device, entities, publish))
	}
	state.logger.Info("master@loading devices bound", zap.Int("devices", len(devices)), zap.Int("entities", len(state.entities)))

	liveSyncPID, err := state.startLiveSyncActor(ctx, devices)
	if err != nil {
		panic(err)
	}
	state.liveSyncActor = liveSyncPID
	sender := adactor.NewLiveSyncSender(ctx.ActorSystem().Root, liveSyncPID, commandTimeout)
	for _, device := range devices {
		device.SetWriter(sender)
	}

	if state.config.MQTT.HADiscoveryEnable {
		if _, err := state.startHADiscoveryActor(ctx, descriptors, removedEntities(state.published, descriptors)); err != nil {
			panic(err)
		}
	}
	state.published = descriptors
}

// reload tears down the live-sync session and every binding, then loads the
// device list again.
func (state *MasterOfPuppetsActor) reload(ctx actor.Context) {
	if state.phase == MASTER_STATE_LOADING {
		state.reloadPending = true
		return
	}
	state.logger.Info("master@default reload")
	if state.liveSyncActor != nil {
		if err := ctx.StopFuture(state.liveSyncActor).Wait(); err != nil {
			state.logger.Warn("master@default livesync did not stop cleanly", zap.Error(err))
		}
		state.liveSyncActor = nil
	}
	state.unbindDevices()
	state.phase = MASTER_STATE_LOADING
	state.behavior.Become(state.LoadingReceive)
	state.requestDevices(ctx)
}

func (state *MasterOfPuppetsActor) unbindDevices() {
	for _, cancel := range state.bindings {
		cancel()
	}
	state.bindings = nil
	state.entities = map[string]entity.Entity{}
}

func (state *MasterOfPuppetsActor) removeDevice(ctx actor.Context, msg domain.RemoveDeviceRequest) {
	state.logger.Info("master@default RemoveDeviceRequest", zap.String("device", msg.DeviceId))
	replyTo := ForRequest(msg).ReplyTo(ctx)
	future := ctx.RequestFuture(state.cloudActor, domain.RemoveDeviceRequest{DeviceId: msg.DeviceId}, removeRequestTimeout)
	ctx.ReenterAfter(future, func(res any, err error) {
		resp, ok := res.(domain.RemoveDeviceResponse)
		if err != nil || !ok {
			if err == nil {
				err = fmt.Errorf("unexpected response %T", res)
			}
			resp = domain.RemoveDeviceResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
		}
		RespondTo(ctx, replyTo, resp)
		if resp.Changed {
			state.reload(ctx)
		}
	})
}

func (state *MasterOfPuppetsActor) applyCommand(ctx actor.Context, component, uniqueId string, cmd entity.Command) {
	target, ok := state.entities[uniqueId]
	if !ok || target.Descriptor().Component != component {
		state.logger.Warn("master@default command for unknown entity",
			zap.String("component", component), zap.String("entity", uniqueId))
		return
	}
	NewBackgroundTask(ctx, func() (*commandResult, error) {
		cmdCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return &commandResult{entity: target, field: cmd.Field, err: target.Apply(cmdCtx, cmd)}, nil
	}).Named("entity_command").Recover(func(err error) commandResult {
		return commandResult{entity: target, field: cmd.Field, err: err}
	}).WithTimeout(commandTimeout + time.Second).PipeToAsync(ctx.Self())
}

// announceGateway republishes the gateway status after the broker session
// was (re)established.
func (state *MasterOfPuppetsActor) announceGateway(ctx actor.Context) {
	if state.liveSyncActor != nil {
		ctx.Request(state.liveSyncActor, domain.LiveSyncStatusRequest{Announce: true})
		return
	}
	state.eventStream.Publish(domain.GatewayStatusEvent{
		StateUpdateEventMixIn: domain.StateUpdateEventMixIn{Id: domain.ENTITY_ID_GATEWAY_STATE},
		Online:                false,
	})
}

func removedEntities(previous, current []domain.EntityDescriptor) []domain.EntityDescriptor {
	kept := make(map[string]bool, len(current))
	for _, e := range current {
		kept[e.UniqueId] = true
	}
	var removed []domain.EntityDescriptor
	for _, e := range previous {
		if !kept[e.UniqueId] {
			removed = append(removed, e)
		}
	}
	return removed
}

func (state *MasterOfPuppetsActor) startCloudActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	cloudProps := actor.PropsFromProducer(func() actor.Actor {
		return state.cloudActorProvider()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(cloudProps, domain.ACTOR_ID_CLOUD)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *MasterOfPuppetsActor) startLiveSyncActor(ctx actor.Context, devices []*domain.DeviceModel) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(30*time.Second, 1*time.Second)

	liveSyncProps := actor.PropsFromProducer(func() actor.Actor {
		return state.liveSyncActorProvider(devices, state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(liveSyncProps, domain.ACTOR_ID_LIVESYNC)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context, entities, remove []domain.EntityDescriptor) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(3, 30*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(state.mqttActor, entities, remove, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnPrefix(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY), nil
}

func (state *healthCheckResult) reset() {
	state.healthy = map[string]bool{}
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 3
}

func (state *healthCheckResult) allHealthy() bool {
	for _, healthy := range state.healthy {
		if !healthy {
			return false
		}
	}
	return len(state.healthy) == 3
}

func (state *healthCheckResult) respond(ctx actor.Context, phase string) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
		State:   phase,
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
