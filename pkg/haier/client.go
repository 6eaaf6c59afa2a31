package haier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
)

type Endpoints struct {
	RefreshToken  string
	UserInfo      string
	Devices       string
	GatewayAssign string
	DigitalModel  string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		RefreshToken:  "https://zj.haier.net/api-gw/oauthserver/account/v1/refreshToken",
		UserInfo:      "https://account-api.haier.net/v2/haier/userinfo",
		Devices:       "https://uws.haier.net/uds/v1/protected/deviceinfos",
		GatewayAssign: "https://uws.haier.net/gmsWS/wsag/assign",
		DigitalModel:  "https://uws.haier.net/shadow/v1/devdigitalmodels",
	}
}

type Client struct {
	httpClient *http.Client
	endpoints  Endpoints
	clientId   string
	modelCache *ttlcache.Cache[string, []json.RawMessage]
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.RWMutex
	token string
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithEndpoints(endpoints Endpoints) ClientOption {
	return func(c *Client) {
		c.endpoints = endpoints
	}
}

// WithModelCacheTTL sets how long a digital model stays cached. Zero disables caching.
func WithModelCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl <= 0 {
			c.modelCache = nil
			return
		}
		c.modelCache = ttlcache.New(
			ttlcache.WithTTL[string, []json.RawMessage](ttl),
		)
	}
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(clientId, token string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoints:  DefaultEndpoints(),
		clientId:   clientId,
		token:      token,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.modelCache != nil {
		go c.modelCache.Start()
	}
	return c
}

func (c *Client) Close() {
	if c.modelCache != nil {
		c.modelCache.Stop()
	}
}

func (c *Client) ClientId() string {
	return c.clientId
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	if c.modelCache != nil {
		c.modelCache.DeleteAll()
	}
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (TokenInfo, error) {
	var resp refreshTokenResponse
	err := c.doSigned(ctx, http.MethodPost, c.endpoints.RefreshToken, map[string]string{
		"refreshToken": refreshToken,
	}, &resp)
	if err != nil {
		return TokenInfo{}, err
	}
	if resp.Data.TokenInfo.AccountToken == "" {
		return TokenInfo{}, &ClientError{Message: "refresh token response has no account token", Auth: true}
	}
	return resp.Data.TokenInfo, nil
}

func (c *Client) GetUserInfo(ctx context.Context) (UserInfo, error) {
	token := c.Token()
	if token == "" {
		return UserInfo{}, ErrEmptyToken
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.UserInfo, nil)
	if err != nil {
		return UserInfo{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	raw, status, err := c.do(req)
	if err != nil {
		return UserInfo{}, err
	}
	var resp userInfoResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return UserInfo{}, fmt.Errorf("haier: decoding user info (http %d): %w", status, err)
	}
	if resp.ErrorDescription != nil {
		return UserInfo{}, &ClientError{
			Message: fmt.Sprintf("error getting user info: %s", *resp.ErrorDescription),
			Auth:    true,
		}
	}
	if status == http.StatusUnauthorized {
		return UserInfo{}, &ClientError{Message: "user info unauthorized", Auth: true}
	}
	return resp.UserInfo, nil
}

func (c *Client) GetDevices(ctx context.Context) ([]DeviceInfo, error) {
	var resp devicesResponse
	if err := c.doSigned(ctx, http.MethodGet, c.endpoints.Devices, nil, &resp); err != nil {
		return nil, err
	}
	return resp.DeviceInfos, nil
}

// GetDigitalModel returns the raw attribute descriptors of one device.
func (c *Client) GetDigitalModel(ctx context.Context, deviceId string) ([]json.RawMessage, error) {
	if c.modelCache != nil {
		if item := c.modelCache.Get(deviceId); item != nil {
			return item.Value(), nil
		}
	}

	payload := map[string]any{
		"deviceInfoList": []map[string]string{
			{"deviceId": deviceId},
		},
	}
	var resp digitalModelResponse
	if err := c.doSigned(ctx, http.MethodPost, c.endpoints.DigitalModel, payload, &resp); err != nil {
		return nil, err
	}

	detail, ok := resp.DetailInfo[deviceId]
	if !ok {
		c.logger.Warn("haier: digital model missing from response", zap.String("device", deviceId))
		return []json.RawMessage{}, nil
	}
	var model digitalModel
	if err := json.Unmarshal([]byte(detail), &model); err != nil {
		return nil, fmt.Errorf("haier: decoding digital model of %s: %w", deviceId, err)
	}

	if c.modelCache != nil {
		c.modelCache.Set(deviceId, model.Attributes, ttlcache.DefaultTTL)
	}
	return model.Attributes, nil
}

// GetGatewayURL asks the cloud which push gateway this client must use.
func (c *Client) GetGatewayURL(ctx context.Context) (string, error) {
	var resp gatewayResponse
	err := c.doSigned(ctx, http.MethodPost, c.endpoints.GatewayAssign, map[string]string{
		"clientId": c.clientId,
		"token":    c.Token(),
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AgAddr == "" {
		return "", &ClientError{Message: "gateway assign response has no agAddr"}
	}
	return strings.Replace(resp.AgAddr, "http://", "wss://", 1), nil
}

func (c *Client) commonHeaders(endpoint, body string) http.Header {
	now := c.now()
	timestamp := MillisTimestamp(now)
	h := http.Header{}
	h.Set("accessToken", c.Token())
	h.Set("appId", APP_ID)
	h.Set("appKey", APP_KEY)
	h.Set("clientId", c.clientId)
	h.Set("sequenceId", SequenceId(now))
	h.Set("sign", Sign(endpoint, body, APP_ID, APP_KEY, timestamp))
	h.Set("timestamp", timestamp)
	h.Set("timezone", TIMEZONE)
	h.Set("language", LANGUAGE)
	return h
}

func (c *Client) doSigned(ctx context.Context, method, endpoint string, payload any, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header = c.commonHeaders(endpoint, string(body))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	raw, status, err := c.do(req)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &ClientError{
			Message: fmt.Sprintf("malformed response (http %d): %s", status, err),
			Auth:    status == http.StatusUnauthorized,
		}
	}
	if env.RetCode != "" && env.RetCode != RET_CODE_SUCCESS {
		return &ClientError{Code: env.RetCode, Message: env.RetInfo}
	}
	if status == http.StatusUnauthorized {
		return &ClientError{Message: "unauthorized", Auth: true}
	}
	if status >= 300 {
		return &ClientError{Message: fmt.Sprintf("http status %d", status)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("haier: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("haier: reading %s: %w", req.URL.Path, err)
	}
	return raw, resp.StatusCode, nil
}
