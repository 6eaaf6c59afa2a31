package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/haier2mqtt/internal/core/domain"
	"github.com/berfenger/haier2mqtt/internal/core/port"
	"github.com/berfenger/haier2mqtt/internal/core/service"
	"github.com/berfenger/haier2mqtt/internal/util/actorutil"
	"github.com/berfenger/haier2mqtt/pkg/haier"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/kr/pretty"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	loadDevicesTimeout = 2 * time.Minute
	revalidateTimeout  = 30 * time.Second
)

type CloudConfig struct {
	InitConcurrency int
	RequestTimeout  time.Duration
}

// CloudActor owns every request/response exchange with the cloud API:
// token revalidation and the device/schema load.
type CloudActor struct {
	behavior   actor.Behavior
	stash      *actorutil.Stash
	client     port.CloudClient
	store      port.BlobStore
	keeper     *service.TokenKeeper
	classifier *service.Classifier
	filters    *service.Filters
	cfg        CloudConfig
	logger     *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewCloudActor(client port.CloudClient, store port.BlobStore, keeper *service.TokenKeeper,
	filters *service.Filters, cfg CloudConfig, logger *zap.Logger) *CloudActor {

	if cfg.InitConcurrency <= 0 {
		cfg.InitConcurrency = 1
	}
	act := &CloudActor{
		client:     client,
		store:      store,
		keeper:     keeper,
		filters:    filters,
		cfg:        cfg,
		classifier: service.NewClassifier(logger),
		behavior:   actor.NewBehavior(),
		stash:      &actorutil.Stash{},
		logger:     actorutil.ActorLogger(domain.ACTOR_ID_CLOUD, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *CloudActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *CloudActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("cloud@starting started")
		loadCtx, cancel := context.WithTimeout(context.Background(), state.cfg.RequestTimeout)
		defer cancel()
		if err := state.keeper.Load(loadCtx); err != nil {
			panic(err)
		}
		var persisted service.DeviceFilter
		found, err := state.store.Load(loadCtx, service.STORE_KEY_DEVICE_FILTER, &persisted)
		if err != nil {
			panic(err)
		}
		if found {
			state.logger.Debug("cloud@starting using persisted device filter", zap.Any("filter", persisted))
			state.filters.Device = persisted
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("cloud@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *CloudActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("cloud@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_CLOUD,
			Healthy: true,
			State:   "idle",
		})
	case domain.RevalidateTokenRequest:
		state.logger.Debug("cloud@default: RevalidateTokenRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.revalidate),
			mapTaskResult[domain.RevalidateTokenResponse](sender)).Named("revalidate_token").Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.RevalidateTokenResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				},
				replyTo: sender,
			}
		}).WithTimeout(revalidateTimeout).PipeToAsync(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingCloud)
	case domain.LoadDevicesRequest:
		state.logger.Debug("cloud@default: LoadDevicesRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.loadDevices),
			mapTaskResult[domain.LoadDevicesResponse](sender)).Named("load_devices").Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.LoadDevicesResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				},
				replyTo: sender,
			}
		}).WithTimeout(loadDevicesTimeout).PipeToAsync(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingCloud)
	case domain.RemoveDeviceRequest:
		state.logger.Info("cloud@default: RemoveDeviceRequest", zap.String("device", msg.DeviceId))
		actorutil.ForRequest(msg).Respond(ctx, state.removeDevice(msg.DeviceId))
	default:
		state.logger.Debug("cloud@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *CloudActor) WaitingCloud(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("cloud@WaitingCloud backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		actorutil.RespondTo(ctx, msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_CLOUD,
			Healthy: true,
			State:   "busy",
		})
	default:
		state.logger.Debug("cloud@WaitingCloud stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *CloudActor) revalidate() (*domain.RevalidateTokenResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), revalidateTimeout)
	defer cancel()
	refreshed, err := state.keeper.Revalidate(ctx)
	if err != nil {
		state.logger.Error("cloud@revalidate failed", zap.Error(err))
		return nil, err
	}
	if refreshed {
		state.logger.Info("cloud@revalidate account token refreshed")
	}
	return &domain.RevalidateTokenResponse{Refreshed: refreshed}, nil
}

// loadDevices fetches the device list and the digital model of every allowed
// device, a bounded number at a time. A device whose model cannot be fetched
// is reported in Failed and left out.
func (state *CloudActor) loadDevices() (*domain.LoadDevicesResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), loadDevicesTimeout)
	defer cancel()

	devices, err := callWithTimeout(ctx, state.cfg.RequestTimeout, state.client.GetDevices)
	if err != nil {
		state.logger.Error("cloud@load cannot list devices", zap.Error(err))
		return nil, err
	}
	state.logger.Debug("cloud@load device list", zap.String("devices", pretty.Sprint(devices)))

	var allowed []haier.DeviceInfo
	for _, d := range devices {
		if state.filters.AllowDevice(d.DeviceId) {
			allowed = append(allowed, d)
		} else {
			state.logger.Info("cloud@load device filtered out", zap.String("device", d.DeviceId))
		}
	}

	models := make([]*domain.DeviceModel, len(allowed))
	var failedMu sync.Mutex
	var failed []string

	var g errgroup.Group
	g.SetLimit(state.cfg.InitConcurrency)
	for i, info := range allowed {
		g.Go(func() error {
			descriptors, err := callWithTimeout(ctx, state.cfg.RequestTimeout, func(ctx context.Context) ([]json.RawMessage, error) {
				return state.client.GetDigitalModel(ctx, info.DeviceId)
			})
			if err != nil {
				state.logger.Error("cloud@load cannot fetch digital model",
					zap.String("device", info.DeviceId), zap.Error(err))
				failedMu.Lock()
				failed = append(failed, info.DeviceId)
				failedMu.Unlock()
				return nil
			}
			models[i] = state.buildModel(info, descriptors)
			return nil
		})
	}
	_ = g.Wait()

	resp := &domain.LoadDevicesResponse{Failed: failed}
	for _, model := range models {
		if model == nil {
			continue
		}
		resp.Devices = append(resp.Devices, model)
		record := domain.DeviceRecord{Device: model.Info, Attributes: model.Attributes()}
		if err := state.store.Save(ctx, domain.DeviceStoreKey(model.Id()), record); err != nil {
			state.logger.Warn("cloud@load cannot persist device dump", zap.String("device", model.Id()), zap.Error(err))
		}
	}
	state.logger.Info("cloud@load devices loaded", zap.Int("loaded", len(resp.Devices)), zap.Int("failed", len(failed)))
	return resp, nil
}

func (state *CloudActor) buildModel(info haier.DeviceInfo, descriptors []json.RawMessage) *domain.DeviceModel {
	specs, values := state.classifier.ClassifyDevice(info.DeviceId, descriptors)
	allowed := make([]domain.AttributeSpec, 0, len(specs))
	for _, spec := range specs {
		if state.filters.AllowEntity(info.DeviceId, spec.Key) {
			allowed = append(allowed, spec)
		}
	}
	return domain.NewDeviceModel(domain.DeviceInfo{
		Id:          info.DeviceId,
		Name:        info.DeviceName,
		Type:        info.DeviceType,
		ProductCode: info.ProductCode,
		ProductName: info.ProductName,
		WifiType:    info.WifiType,
		Virtual:     info.Virtual,
	}, allowed, values)
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

func (state *CloudActor) removeDevice(deviceId string) domain.RemoveDeviceResponse {
	if !state.filters.RemoveDevice(deviceId) {
		return domain.RemoveDeviceResponse{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), state.cfg.RequestTimeout)
	defer cancel()
	if err := state.store.Save(ctx, service.STORE_KEY_DEVICE_FILTER, state.filters.Device); err != nil {
		return domain.RemoveDeviceResponse{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
	}
	if err := state.store.Remove(ctx, domain.DeviceStoreKey(deviceId)); err != nil {
		state.logger.Warn("cloud@default cannot remove device dump", zap.String("device", deviceId), zap.Error(err))
	}
	return domain.RemoveDeviceResponse{Changed: true}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
