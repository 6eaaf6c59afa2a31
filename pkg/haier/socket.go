package haier

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// PushConn is one open push channel. ReadFrame is called from a single reader;
// writes come from the owner of the connection only.
type PushConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
}

type wsPushConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *zap.Logger
}

// PushURL builds the user gateway url. The access token doubles as agClientId.
func PushURL(gatewayURL, token string) string {
	escaped := url.QueryEscape(token)
	return fmt.Sprintf("%s/userag?token=%s&agClientId=%s", gatewayURL, escaped, escaped)
}

func (c *Client) DialPush(ctx context.Context, gatewayURL string) (PushConn, error) {
	token := c.Token()
	if token == "" {
		return nil, ErrEmptyToken
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, PushURL(gatewayURL, token), nil)
	if err != nil {
		return nil, fmt.Errorf("haier: dialing push gateway: %w", err)
	}
	return &wsPushConn{conn: conn, writeTimeout: 10 * time.Second, logger: c.logger}, nil
}

// AgClientId is the client id announced in every push frame.
func (c *Client) AgClientId() string {
	return c.Token()
}

func (c *wsPushConn) ReadFrame() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage {
			return data, nil
		}
		c.logger.Warn("haier: skipping non-text push frame", zap.Int("type", messageType), zap.Int("size", len(data)))
	}
}

func (c *wsPushConn) WriteFrame(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsPushConn) Close() error {
	return c.conn.Close()
}
