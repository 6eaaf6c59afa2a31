package domain

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_CLOUD        = "cloud"
	ACTOR_ID_LIVESYNC     = "livesync"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type RevalidateTokenRequest struct {
	ActorRequestMixIn
}

type RevalidateTokenResponse struct {
	ActorResponseMixIn
	Refreshed bool
}

type LoadDevicesRequest struct {
	ActorRequestMixIn
}

type LoadDevicesResponse struct {
	ActorResponseMixIn
	Devices []*DeviceModel
	// Failed holds the ids of devices whose schema could not be fetched.
	Failed []string
}

type RemoveDeviceRequest struct {
	ActorRequestMixIn
	DeviceId string
}

type RemoveDeviceResponse struct {
	ActorResponseMixIn
	Changed bool
}

type SendCommandRequest struct {
	ActorRequestMixIn
	DeviceId   string
	Attributes map[string]any
}

type SendCommandResponse struct {
	ActorResponseMixIn
}

type LiveSyncStatusRequest struct {
	ActorRequestMixIn
	// Announce republishes the current gateway status on the event stream.
	Announce bool
}

type LiveSyncStatusResponse struct {
	ActorResponseMixIn
	State     string   `json:"state"`
	SessionId string   `json:"session_id,omitempty"`
	Devices   []string `json:"devices"`
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishStateUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  StateUpdateEvent
}

type PublishStateUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Entities []EntityDescriptor
	// Remove lists entities whose discovery config must be cleared.
	Remove []EntityDescriptor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
