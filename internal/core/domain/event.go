package domain

import "fmt"

type StateUpdateEventMixIn struct {
	Id string
}

type StateUpdateEvent interface {
	StateUpdateEvent() string
	StateId() string
}

func (e StateUpdateEventMixIn) StateUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e StateUpdateEventMixIn) StateId() string {
	return e.Id
}

// EntityStateEvent carries the full displayed state of one entity.
type EntityStateEvent struct {
	StateUpdateEventMixIn
	Component string
	State     map[string]any
	Available bool
}

// GatewayStatusEvent reports push channel availability for one live-sync session.
type GatewayStatusEvent struct {
	StateUpdateEventMixIn
	SessionId string
	Online    bool
}

type BridgeStateUpdateEvent struct {
	StateUpdateEventMixIn
	Value bool
}
