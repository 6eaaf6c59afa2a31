package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/haier2mqtt/internal/core/domain"
	"github.com/berfenger/haier2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	discoveryHealthTimeout  = 12 * time.Second
	discoveryPublishTimeout = 10 * time.Second
)

// HADiscoveryActor publishes one set of discovery configs once the MQTT actor
// is up, then stops.
type HADiscoveryActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	mqttActor *actor.PID
	entities  []domain.EntityDescriptor
	remove    []domain.EntityDescriptor

	logger *zap.Logger
}

func NewHADiscoveryActor(mqttActor *actor.PID, entities, remove []domain.EntityDescriptor, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		mqttActor: mqttActor,
		entities:  entities,
		remove:    remove,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// the MQTT actor answers once its broker session is up
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, discoveryHealthTimeout), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(errors.New("MQTT Actor is not healthy"))
		}
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.PublishDiscoveryRequest{
			Entities: state.entities,
			Remove:   state.remove,
		}, discoveryPublishTimeout), func(err error) any {
			return domain.PublishDiscoveryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			}
		})
		state.behavior.Become(state.WaitingPublishReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingPublishReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		state.logger.Info("hadiscovery@publish discovery published",
			zap.Int("entities", len(state.entities)), zap.Int("removed", len(state.remove)))
		state.behavior.Become(state.Done)
		ctx.Stop(ctx.Self())
	default:
		state.logger.Debug("hadiscovery@publish: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {

}
