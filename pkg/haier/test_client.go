package haier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// TestCloud is an in-memory stand-in for the cloud API and push gateway.
type TestCloud struct {
	mu sync.Mutex

	Devices      []DeviceInfo
	Models       map[string][]json.RawMessage
	ModelErrors  map[string]error
	User         UserInfo
	UserErr      error
	Refreshed    TokenInfo
	RefreshErr   error
	GatewayErr   error
	DialErr      error
	// DialDelay holds every dial back, even one whose context is cancelled.
	DialDelay    time.Duration
	RefreshCalls int
	DialCalls    int
	token        string
	conns        []*TestPushConn
}

func NewTestCloud(token string) *TestCloud {
	return &TestCloud{
		token:       token,
		Models:      map[string][]json.RawMessage{},
		ModelErrors: map[string]error{},
		User:        UserInfo{UserId: "1", Mobile: "13800000000", Username: "tester"},
	}
}

func (c *TestCloud) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *TestCloud) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *TestCloud) AgClientId() string {
	return c.Token()
}

func (c *TestCloud) RefreshToken(_ context.Context, _ string) (TokenInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RefreshCalls++
	if c.RefreshErr != nil {
		return TokenInfo{}, c.RefreshErr
	}
	return c.Refreshed, nil
}

func (c *TestCloud) GetUserInfo(_ context.Context) (UserInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.UserErr != nil {
		return UserInfo{}, c.UserErr
	}
	return c.User, nil
}

func (c *TestCloud) GetDevices(_ context.Context) ([]DeviceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]DeviceInfo(nil), c.Devices...), nil
}

func (c *TestCloud) GetDigitalModel(_ context.Context, deviceId string) ([]json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ModelErrors[deviceId]; err != nil {
		return nil, err
	}
	return c.Models[deviceId], nil
}

func (c *TestCloud) GetGatewayURL(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GatewayErr != nil {
		return "", c.GatewayErr
	}
	return "wss://gateway.test", nil
}

func (c *TestCloud) DialPush(_ context.Context, _ string) (PushConn, error) {
	c.mu.Lock()
	c.DialCalls++
	delay := c.DialDelay
	c.mu.Unlock()
	time.Sleep(delay)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DialErr != nil {
		return nil, c.DialErr
	}
	conn := NewTestPushConn()
	c.conns = append(c.conns, conn)
	return conn, nil
}

// LastConn returns the most recently dialed connection, or nil.
func (c *TestCloud) LastConn() *TestPushConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.conns) == 0 {
		return nil
	}
	return c.conns[len(c.conns)-1]
}

var errTestConnClosed = errors.New("test push conn closed")

type TestPushConn struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written [][]byte
}

func NewTestPushConn() *TestPushConn {
	return &TestPushConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *TestPushConn) ReadFrame() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.closed:
		return nil, errTestConnClosed
	}
}

func (c *TestPushConn) WriteFrame(data []byte) error {
	select {
	case <-c.closed:
		return errTestConnClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *TestPushConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Push queues an inbound frame for the reader.
func (c *TestPushConn) Push(data []byte) {
	c.inbound <- data
}

// Written returns the topics of every frame written so far, in order.
func (c *TestPushConn) Written() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := make([]Frame, 0, len(c.written))
	for _, raw := range c.written {
		var f struct {
			AgClientId string          `json:"agClientId"`
			Topic      string          `json:"topic"`
			Content    json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal(raw, &f); err == nil {
			frames = append(frames, Frame{AgClientId: f.AgClientId, Topic: f.Topic, Content: f.Content})
		}
	}
	return frames
}

func (c *TestPushConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// EncodeDeltaFrame builds a GenMsgDown frame the way the gateway sends it.
func EncodeDeltaFrame(agClientId, deviceId string, attributes map[string]string) ([]byte, error) {
	args, err := EncodeDeltaArgs(attributes)
	if err != nil {
		return nil, err
	}
	env, err := json.Marshal(deviceEnvelope{Dev: deviceId, Args: args})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{
		AgClientId: agClientId,
		Topic:      TOPIC_GEN_MSG_DOWN,
		Content: genMsgDownContent{
			BusinType: BUSIN_TYPE_DIGITAL_MODEL,
			Data:      base64.StdEncoding.EncodeToString(env),
		},
	})
}
