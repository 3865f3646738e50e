package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultMurfStreamURL = "wss://api.murf.ai/v1/speech/stream-input"

// ErrReceiveTimeout is returned by Receive when no message arrived in time.
// The connection stays usable.
var ErrReceiveTimeout = errors.New("tts receive timeout")

// StreamConn is one upstream streaming synthesis connection.
type StreamConn interface {
	Send(msg any) error
	Receive(timeout time.Duration) ([]byte, error)
	Close() error
}

// StreamDialer opens streaming synthesis connections.
type StreamDialer interface {
	Dial(ctx context.Context, contextID string) (StreamConn, error)
}

// MurfStreamDialer dials Murf's stream-input WebSocket.
type MurfStreamDialer struct {
	apiKey     string
	url        string
	sampleRate int
	dialer     websocket.Dialer
}

func NewMurfStreamDialer(apiKey, streamURL string, sampleRate int) *MurfStreamDialer {
	if streamURL == "" {
		streamURL = defaultMurfStreamURL
	}
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &MurfStreamDialer{
		apiKey:     apiKey,
		url:        streamURL,
		sampleRate: sampleRate,
		dialer:     websocket.Dialer{},
	}
}

func (d *MurfStreamDialer) Dial(ctx context.Context, contextID string) (StreamConn, error) {
	u, err := url.Parse(d.url)
	if err != nil {
		return nil, fmt.Errorf("parse murf stream URL: %w", err)
	}
	q := u.Query()
	q.Set("api-key", d.apiKey)
	q.Set("sample_rate", strconv.Itoa(d.sampleRate))
	q.Set("channel_type", "MONO")
	q.Set("format", "WAV")
	q.Set("context_id", contextID)
	u.RawQuery = q.Encode()

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("murf connect (status %d): %s: %w", resp.StatusCode, string(body), err)
		}
		return nil, fmt.Errorf("murf connect: %w", err)
	}

	c := &murfStreamConn{
		conn:   conn,
		frames: make(chan []byte, 64),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

type murfStreamConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	frames    chan []byte
	done      chan struct{} // closed when the read loop exits
	readErr   error         // set before done is closed
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *murfStreamConn) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		select {
		case c.frames <- data:
		case <-c.closed:
			return
		}
	}
}

func (c *murfStreamConn) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal murf message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Receive drains buffered frames before reporting a read error.
func (c *murfStreamConn) Receive(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-c.frames:
		return data, nil
	default:
	}

	select {
	case data := <-c.frames:
		return data, nil
	case <-c.done:
		select {
		case data := <-c.frames:
			return data, nil
		default:
		}
		if c.readErr != nil {
			return nil, c.readErr
		}
		return nil, io.EOF
	case <-timer.C:
		return nil, ErrReceiveTimeout
	}
}

func (c *murfStreamConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
