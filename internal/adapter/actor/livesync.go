package actor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/berfenger/haier2mqtt/internal/core/domain"
	"github.com/berfenger/haier2mqtt/internal/core/port"
	"github.com/berfenger/haier2mqtt/internal/core/service"
	. "github.com/berfenger/haier2mqtt/internal/util/actorutil"
	"github.com/berfenger/haier2mqtt/pkg/haier"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	LIVESYNC_STATE_DISCONNECTED = "disconnected"
	LIVESYNC_STATE_CONNECTING   = "connecting"
	LIVESYNC_STATE_SUBSCRIBED   = "subscribed"
	LIVESYNC_STATE_STREAMING    = "streaming"
	LIVESYNC_STATE_STOPPED      = "stopped"

	connectTimeout = 30 * time.Second
)

type LiveSyncConfig struct {
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
}

// LiveSyncActor keeps the push channel open, applies inbound deltas to the
// device models and writes outbound commands. Messages produced for an older
// connection carry its generation and are dropped.
type LiveSyncActor struct {
	ActorWithStates
	scheduler   *scheduler.TimerScheduler
	stash       *Stash
	connector   port.PushConnector
	devices     map[string]*domain.DeviceModel
	deviceIds   []string
	guard       *service.SessionGuard
	eventStream *eventstream.EventStream
	cfg         LiveSyncConfig
	generation  uint64

	logger *zap.Logger
}

type connectTick struct{}

var errDialAbandoned = errors.New("livesync: dial abandoned")

// dialHandoff passes a dialed connection from the background dial to the
// actor. A connection offered but never claimed is closed on abandon.
type dialHandoff struct {
	mu        sync.Mutex
	conn      haier.PushConn
	abandoned bool
}

func (h *dialHandoff) offer(conn haier.PushConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.abandoned {
		return false
	}
	h.conn = conn
	return true
}

func (h *dialHandoff) claim() haier.PushConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn := h.conn
	h.conn = nil
	return conn
}

func (h *dialHandoff) abandon() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.abandoned = true
	if h.conn != nil {
		h.conn.Close()
		h.conn = nil
	}
}

type connectResult struct {
	generation uint64
	conn       haier.PushConn
	err        error
}

type startStreaming struct {
	generation uint64
}

type heartbeatTick struct {
	generation uint64
}

type frameDecoded struct {
	generation uint64
	delta      *haier.Delta
}

type frameSkipped struct {
	generation uint64
	err        error
}

type readFailed struct {
	generation uint64
	err        error
}

func NewLiveSyncActor(connector port.PushConnector, devices []*domain.DeviceModel, guard *service.SessionGuard,
	eventStream *eventstream.EventStream, cfg LiveSyncConfig, logger *zap.Logger) *LiveSyncActor {

	byId := make(map[string]*domain.DeviceModel, len(devices))
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		byId[d.Id()] = d
		ids = append(ids, d.Id())
	}
	slices.Sort(ids)

	act := &LiveSyncActor{
		ActorWithStates: NewActorWithStates(),
		stash:           &Stash{},
		connector:       connector,
		devices:         byId,
		deviceIds:       ids,
		guard:           guard,
		eventStream:     eventStream,
		cfg:             cfg,
		logger:          ActorLogger(domain.ACTOR_ID_LIVESYNC, logger),
	}
	act.Become(LSStartingState{actor: act})
	return act
}

func (state *LiveSyncActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// receiveCommon answers the requests every state handles the same way.
func (state *LiveSyncActor) receiveCommon(ctx actor.Context, sessionId string) bool {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_LIVESYNC,
			Healthy: true,
			State:   state.StateName(),
		})
	case domain.LiveSyncStatusRequest:
		if msg.Announce {
			state.publishGatewayStatus(sessionId, sessionId != "")
		}
		ForRequest(msg).Respond(ctx, domain.LiveSyncStatusResponse{
			State:     state.StateName(),
			SessionId: sessionId,
			Devices:   slices.Clone(state.deviceIds),
		})
	case frameDecoded, frameSkipped, readFailed, heartbeatTick, startStreaming:
		state.logger.Debug(fmt.Sprintf("livesync@%s drop stale message", state.StateName()),
			zap.String("type", fmt.Sprintf("%T", msg)))
	case connectResult:
		// a dial that completed after its connection was abandoned
		if msg.conn != nil {
			msg.conn.Close()
		}
	default:
		return false
	}
	return true
}

func (state *LiveSyncActor) rejectCommand(ctx actor.Context, msg domain.SendCommandRequest) {
	state.logger.Warn(fmt.Sprintf("livesync@%s command while not connected", state.StateName()),
		zap.String("device", msg.DeviceId))
	ForRequest(msg).Respond(ctx, domain.SendCommandResponse{
		ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: haier.ErrNotConnected},
	})
}

func (state *LiveSyncActor) publishGatewayStatus(sessionId string, online bool) {
	state.eventStream.Publish(domain.GatewayStatusEvent{
		StateUpdateEventMixIn: domain.StateUpdateEventMixIn{Id: domain.ENTITY_ID_GATEWAY_STATE},
		SessionId:             sessionId,
		Online:                online,
	})
}

// Starting state

type LSStartingState struct {
	actor *LiveSyncActor
}

func (state LSStartingState) Name() string {
	return "starting"
}

func (state LSStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("livesync@starting started", zap.Strings("devices", state.actor.deviceIds))
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		state.actor.Become(LSDisconnectedState{actor: state.actor}.OnEnter(ctx, 0))
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.actor.logger.Debug("livesync@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Disconnected state

type LSDisconnectedState struct {
	actor           *LiveSyncActor
	cancelReconnect scheduler.CancelFunc
}

func (state LSDisconnectedState) Name() string {
	return LIVESYNC_STATE_DISCONNECTED
}

// OnEnter schedules the next connection attempt after delay.
func (state LSDisconnectedState) OnEnter(ctx actor.Context, delay time.Duration) LSDisconnectedState {
	if delay <= 0 {
		ctx.Send(ctx.Self(), connectTick{})
		return state
	}
	state.actor.logger.Info("livesync@disconnected reconnecting later", zap.Duration("delay", delay))
	state.cancelReconnect = state.actor.scheduler.SendOnce(delay, ctx.Self(), connectTick{})
	return state
}

func (state LSDisconnectedState) Receive(ctx actor.Context) {
	if state.actor.receiveCommon(ctx, "") {
		return
	}
	switch msg := ctx.Message().(type) {
	case connectTick:
		state.actor.Become(LSConnectingState{actor: state.actor}.OnEnter(ctx))
	case domain.SendCommandRequest:
		state.actor.rejectCommand(ctx, msg)
	case *actor.Stopping:
		state.actor.logger.Debug("livesync@disconnected stopping")
		if state.cancelReconnect != nil {
			state.cancelReconnect()
		}
	default:
		state.actor.logger.Debug("livesync@disconnected default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Connecting state

type LSConnectingState struct {
	actor      *LiveSyncActor
	generation uint64
	handoff    *dialHandoff
	cancelDial context.CancelFunc
}

func (state LSConnectingState) Name() string {
	return LIVESYNC_STATE_CONNECTING
}

// OnEnter resolves the gateway and dials it off the actor thread.
func (state LSConnectingState) OnEnter(ctx actor.Context) LSConnectingState {
	state.actor.generation++
	state.generation = state.actor.generation
	generation := state.generation
	connector := state.actor.connector
	logger := state.actor.logger
	handoff := &dialHandoff{}
	dialCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	state.handoff = handoff
	state.cancelDial = cancel

	NewBackgroundTask(ctx, func() (*connectResult, error) {
		defer cancel()
		gatewayURL, err := connector.GetGatewayURL(dialCtx)
		if err != nil {
			return nil, fmt.Errorf("resolving gateway: %w", err)
		}
		logger.Debug("livesync@connecting dialing", zap.String("gateway", gatewayURL))
		conn, err := connector.DialPush(dialCtx, gatewayURL)
		if err != nil {
			return nil, err
		}
		if !handoff.offer(conn) {
			conn.Close()
			return nil, errDialAbandoned
		}
		return &connectResult{generation: generation, conn: conn}, nil
	}).Named("livesync_connect").Recover(func(err error) connectResult {
		return connectResult{generation: generation, err: err}
	}).PipeToAsync(ctx.Self())
	return state
}

func (state LSConnectingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case connectResult:
		if msg.generation != state.generation {
			if msg.conn != nil {
				msg.conn.Close()
			}
			return
		}
		if msg.err != nil {
			state.actor.logger.Error("livesync@connecting cannot open push channel", zap.Error(msg.err))
			state.actor.Become(LSDisconnectedState{actor: state.actor}.OnEnter(ctx, state.actor.cfg.ReconnectDelay))
			return
		}
		conn := state.handoff.claim()
		if conn == nil {
			conn = msg.conn
		}
		subscribed, err := LSSubscribedState{actor: state.actor, generation: state.generation, conn: conn}.OnEnter(ctx)
		if err != nil {
			state.actor.logger.Error("livesync@connecting cannot subscribe devices", zap.Error(err))
			conn.Close()
			state.actor.Become(LSDisconnectedState{actor: state.actor}.OnEnter(ctx, state.actor.cfg.ReconnectDelay))
			return
		}
		state.actor.Become(subscribed)
	case domain.SendCommandRequest:
		state.actor.rejectCommand(ctx, msg)
	case *actor.Stopping, *actor.Restarting:
		state.actor.logger.Debug("livesync@connecting stopping, dial abandoned")
		state.cancelDial()
		state.handoff.abandon()
	default:
		if !state.actor.receiveCommon(ctx, "") {
			state.actor.logger.Debug("livesync@connecting default recv", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

// Subscribed state

type LSSubscribedState struct {
	actor           *LiveSyncActor
	generation      uint64
	conn            haier.PushConn
	sessionId       string
	cancelHeartbeat scheduler.CancelFunc
}

func (state LSSubscribedState) Name() string {
	return LIVESYNC_STATE_SUBSCRIBED
}

// OnEnter announces the watched devices, starts the heartbeat and claims the
// session as the authoritative one.
func (state LSSubscribedState) OnEnter(ctx actor.Context) (LSSubscribedState, error) {
	frame, err := haier.EncodeBoundDevs(state.actor.connector.AgClientId(), state.actor.deviceIds)
	if err != nil {
		return state, err
	}
	if err := state.conn.WriteFrame(frame); err != nil {
		return state, err
	}
	state.sendHeartbeat()
	interval := state.actor.cfg.HeartbeatInterval
	state.cancelHeartbeat = state.actor.scheduler.SendRepeatedly(interval, interval, ctx.Self(),
		heartbeatTick{generation: state.generation})
	state.sessionId = state.actor.guard.Claim()
	state.actor.logger.Info("livesync@subscribed session started", zap.String("session", state.sessionId),
		zap.Int("devices", len(state.actor.deviceIds)))
	state.actor.publishGatewayStatus(state.sessionId, true)
	ctx.Send(ctx.Self(), startStreaming{generation: state.generation})
	return state, nil
}

func (state LSSubscribedState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case startStreaming:
		if msg.generation != state.generation {
			return
		}
		state.actor.Become(LSStreamingState{LSSubscribedState: state}.OnEnter(ctx))
	case *actor.Stopping, *actor.Restarting:
		state.actor.logger.Debug("livesync@subscribed stopping")
		state.teardown()
	default:
		// anything else is handled once streaming
		state.actor.stash.Stash(ctx, msg)
	}
}

// sendHeartbeat writes one keepalive frame. Failures are logged only.
func (state LSSubscribedState) sendHeartbeat() {
	frame, err := haier.EncodeHeartBeat(state.actor.connector.AgClientId())
	if err == nil {
		err = state.conn.WriteFrame(frame)
	}
	if err != nil {
		state.actor.logger.Warn("livesync@heartbeat failed", zap.Error(err))
	}
}

// teardown ends the session. Only the session still recorded as current
// reports the gateway as unavailable.
func (state LSSubscribedState) teardown() {
	if state.cancelHeartbeat != nil {
		state.cancelHeartbeat()
	}
	if err := state.conn.Close(); err != nil {
		state.actor.logger.Debug("livesync@teardown close", zap.Error(err))
	}
	if state.actor.guard.IsCurrent(state.sessionId) {
		state.actor.publishGatewayStatus(state.sessionId, false)
	} else {
		state.actor.logger.Debug("livesync@teardown superseded session, offline suppressed",
			zap.String("session", state.sessionId))
	}
}

// Streaming state

type LSStreamingState struct {
	LSSubscribedState
}

func (state LSStreamingState) Name() string {
	return LIVESYNC_STATE_STREAMING
}

// OnEnter starts the single reader of the connection. Frames are decoded on
// the reader goroutine and applied on the actor thread.
func (state LSStreamingState) OnEnter(ctx actor.Context) LSStreamingState {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	conn := state.conn
	generation := state.generation
	go func() {
		for {
			data, err := conn.ReadFrame()
			if err != nil {
				root.Send(self, readFailed{generation: generation, err: err})
				return
			}
			delta, err := haier.DecodeFrame(data)
			if err != nil {
				root.Send(self, frameSkipped{generation: generation, err: err})
				continue
			}
			root.Send(self, frameDecoded{generation: generation, delta: delta})
		}
	}()
	state.actor.stash.UnstashAll(ctx)
	return state
}

func (state LSStreamingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case frameDecoded:
		if msg.generation != state.generation {
			return
		}
		device, ok := state.actor.devices[msg.delta.DeviceId]
		if !ok {
			state.actor.logger.Debug("livesync@streaming delta for unknown device", zap.String("device", msg.delta.DeviceId))
			return
		}
		state.actor.logger.Debug("livesync@streaming delta", zap.String("device", msg.delta.DeviceId),
			zap.Any("attributes", msg.delta.Attributes))
		device.ApplyDelta(msg.delta.Attributes)
	case frameSkipped:
		if msg.generation != state.generation {
			return
		}
		if errors.Is(msg.err, haier.ErrIgnoredFrame) {
			state.actor.logger.Debug("livesync@streaming frame ignored", zap.Error(msg.err))
		} else {
			state.actor.logger.Warn("livesync@streaming malformed frame", zap.Error(msg.err))
		}
	case heartbeatTick:
		if msg.generation != state.generation {
			return
		}
		state.sendHeartbeat()
	case domain.SendCommandRequest:
		frame, err := haier.EncodeBatchCmd(state.actor.connector.AgClientId(), msg.DeviceId, msg.Attributes)
		if err == nil {
			err = state.conn.WriteFrame(frame)
		}
		if err != nil {
			state.actor.logger.Error("livesync@streaming command failed", zap.String("device", msg.DeviceId), zap.Error(err))
		} else {
			state.actor.logger.Debug("livesync@streaming command sent", zap.String("device", msg.DeviceId),
				zap.Any("attributes", msg.Attributes))
		}
		ForRequest(msg).Respond(ctx, domain.SendCommandResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
	case readFailed:
		if msg.generation != state.generation {
			return
		}
		state.actor.logger.Warn("livesync@streaming push channel lost", zap.String("session", state.sessionId), zap.Error(msg.err))
		state.teardown()
		state.actor.Become(LSDisconnectedState{actor: state.actor}.OnEnter(ctx, state.actor.cfg.ReconnectDelay))
	case *actor.Stopping, *actor.Restarting:
		state.actor.logger.Info("livesync@streaming stopping", zap.String("session", state.sessionId))
		state.teardown()
	default:
		if !state.actor.receiveCommon(ctx, state.sessionId) {
			state.actor.logger.Debug("livesync@streaming default recv", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

// LiveSyncSender writes device commands through the live-sync actor.
type LiveSyncSender struct {
	root    *actor.RootContext
	pid     *actor.PID
	timeout time.Duration
}

func NewLiveSyncSender(root *actor.RootContext, pid *actor.PID, timeout time.Duration) *LiveSyncSender {
	return &LiveSyncSender{root: root, pid: pid, timeout: timeout}
}

func (s *LiveSyncSender) SendCommand(ctx context.Context, deviceId string, attributes map[string]any) error {
	future := s.root.RequestFuture(s.pid, domain.SendCommandRequest{
		DeviceId:   deviceId,
		Attributes: attributes,
	}, s.timeout)
	result, err := future.Result()
	if err != nil {
		return fmt.Errorf("sending command: %w", err)
	}
	if resp, ok := result.(domain.SendCommandResponse); ok && resp.HasResponseError() {
		return resp.GetResponseError()
	}
	return nil
}

var _ domain.CommandWriter = (*LiveSyncSender)(nil)
