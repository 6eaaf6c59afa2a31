package port

import (
	"context"
	"encoding/json"

	"github.com/berfenger/haier2mqtt/pkg/haier"
)

type CloudClient interface {
	Token() string
	SetToken(token string)
	GetUserInfo(ctx context.Context) (haier.UserInfo, error)
	RefreshToken(ctx context.Context, refreshToken string) (haier.TokenInfo, error)
	GetDevices(ctx context.Context) ([]haier.DeviceInfo, error)
	GetDigitalModel(ctx context.Context, deviceId string) ([]json.RawMessage, error)
}

type PushConnector interface {
	AgClientId() string
	GetGatewayURL(ctx context.Context) (string, error)
	DialPush(ctx context.Context, gatewayURL string) (haier.PushConn, error)
}

// BlobStore persists opaque JSON documents by key.
type BlobStore interface {
	Load(ctx context.Context, key string, out any) (bool, error)
	Save(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// ensure interface compliance
var (
	_ CloudClient   = (*haier.Client)(nil)
	_ PushConnector = (*haier.Client)(nil)
	_ CloudClient   = (*haier.TestCloud)(nil)
	_ PushConnector = (*haier.TestCloud)(nil)
)
