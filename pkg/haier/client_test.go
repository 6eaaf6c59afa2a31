package haier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Endpoints) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, Endpoints{
		RefreshToken:  srv.URL + "/refresh",
		UserInfo:      srv.URL + "/userinfo",
		Devices:       srv.URL + "/uds/v1/protected/deviceinfos",
		GatewayAssign: srv.URL + "/gmsWS/wsag/assign",
		DigitalModel:  srv.URL + "/shadow/v1/devdigitalmodels",
	}
}

func TestSignedHeaders(t *testing.T) {

	require := require.New(t)

	var captured http.Header
	_, endpoints := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Clone()
		w.Write([]byte(`{"retCode":"00000","deviceinfos":[]}`))
	})

	c := NewClient("client-1", "tok", WithEndpoints(endpoints))
	defer c.Close()
	fixed := time.UnixMilli(1700000000000)
	c.now = func() time.Time { return fixed }

	_, err := c.GetDevices(context.Background())
	require.NoError(err)

	require.Equal("tok", captured.Get("accessToken"))
	require.Equal(APP_ID, captured.Get("appId"))
	require.Equal(APP_KEY, captured.Get("appKey"))
	require.Equal("client-1", captured.Get("clientId"))
	require.Equal("1700000000000", captured.Get("timestamp"))
	require.Equal("+8", captured.Get("timezone"))
	require.Equal("zh-CN", captured.Get("language"))
	require.Len(captured.Get("sequenceId"), 20)
	// the path alone is signed, so the test host does not change the signature
	require.Equal("8e5c6d0e557e42bf13fe418b718bca5f71a55f8c7307348314643cd1ef9b46b6", captured.Get("sign"))
}

func TestGetDevices(t *testing.T) {

	require := require.New(t)

	_, endpoints := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":"00000","deviceinfos":[
			{"deviceId":"d1","deviceName":"Kitchen","deviceType":"waterHeater","productCodeT":"GA0Y","productNameT":"JSQ","wifiType":"w1"},
			{"deviceId":"d2","deviceName":"Bedroom","deviceType":"airConditioner","productCodeT":"AC01","wifiType":"w2","virtual":true}
		]}`))
	})

	c := NewClient("client-1", "tok", WithEndpoints(endpoints))
	defer c.Close()

	devices, err := c.GetDevices(context.Background())
	require.NoError(err)
	require.Len(devices, 2)
	require.Equal(DeviceInfo{
		DeviceId:    "d1",
		DeviceName:  "Kitchen",
		DeviceType:  "waterHeater",
		ProductCode: "GA0Y",
		ProductName: "JSQ",
		WifiType:    "w1",
	}, devices[0])
	require.True(devices[1].Virtual)
}

func TestNonSuccessRetCode(t *testing.T) {

	assert := assert.New(t)

	_, endpoints := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":"C0001","retInfo":"bad sign"}`))
	})

	c := NewClient("client-1", "tok", WithEndpoints(endpoints))
	defer c.Close()

	_, err := c.GetDevices(context.Background())
	var clientErr *ClientError
	assert.ErrorAs(err, &clientErr)
	assert.Equal("C0001", clientErr.Code)
	assert.Equal("bad sign", clientErr.Message)
	assert.False(IsAuthError(err))
}

func TestUnauthorizedIsAuthError(t *testing.T) {

	assert := assert.New(t)

	_, endpoints := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{}`))
	})

	c := NewClient("client-1", "tok", WithEndpoints(endpoints))
	defer c.Close()

	_, err := c.GetDevices(context.Background())
	assert.True(IsAuthError(err))
}

func TestGetUserInfo(t *testing.T) {

	require := require.New(t)

	_, endpoints := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.Write([]byte(`{"error":"invalid_token","error_description":"token expired"}`))
			return
		}
		w.Write([]byte(`{"userId":"42","mobile":"138","username":"alice"}`))
	})

	c := NewClient("client-1", "good", WithEndpoints(endpoints))
	defer c.Close()

	user, err := c.GetUserInfo(context.Background())
	require.NoError(err)
	require.Equal(UserInfo{UserId: "42", Mobile: "138", Username: "alice"}, user)

	c.SetToken("stale")
	_, err = c.GetUserInfo(context.Background())
	require.Error(err)
	require.True(IsAuthError(err))
	require.Contains(err.Error(), "token expired")
}

func TestRefreshToken(t *testing.T) {

	require := require.New(t)

	var body map[string]string
	_, endpoints := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)
		w.Write([]byte(`{"retCode":"00000","data":{"tokenInfo":{"accountToken":"new","refreshToken":"r2","expiresIn":604800}}}`))
	})

	c := NewClient("client-1", "old", WithEndpoints(endpoints))
	defer c.Close()

	info, err := c.RefreshToken(context.Background(), "r1")
	require.NoError(err)
	require.Equal("r1", body["refreshToken"])
	require.Equal(TokenInfo{AccountToken: "new", RefreshToken: "r2", ExpiresIn: 604800}, info)
}

func TestGetDigitalModelIsCached(t *testing.T) {

	require := require.New(t)

	var calls atomic.Int32
	_, endpoints := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		detail := `{"attributes":[{"name":"targetTemp","desc":"目标温度","writable":true,"readable":true,"value":"40"}]}`
		resp := map[string]any{
			"retCode":    "00000",
			"detailInfo": map[string]string{"d1": detail},
		}
		json.NewEncoder(w).Encode(resp)
	})

	c := NewClient("client-1", "tok", WithEndpoints(endpoints), WithModelCacheTTL(time.Minute))
	defer c.Close()

	attrs, err := c.GetDigitalModel(context.Background(), "d1")
	require.NoError(err)
	require.Len(attrs, 1)

	attrs, err = c.GetDigitalModel(context.Background(), "d1")
	require.NoError(err)
	require.Len(attrs, 1)
	require.Equal(int32(1), calls.Load())

	missing, err := c.GetDigitalModel(context.Background(), "d9")
	require.NoError(err)
	require.Empty(missing)

	// a new token drops the cache
	c.SetToken("tok2")
	_, err = c.GetDigitalModel(context.Background(), "d1")
	require.NoError(err)
	require.Equal(int32(3), calls.Load())
}

func TestGetGatewayURL(t *testing.T) {

	require := require.New(t)

	_, endpoints := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":"00000","agAddr":"http://ag.haier.net:56801"}`))
	})

	c := NewClient("client-1", "tok", WithEndpoints(endpoints))
	defer c.Close()

	gw, err := c.GetGatewayURL(context.Background())
	require.NoError(err)
	require.Equal("wss://ag.haier.net:56801", gw)
}
