// Package voice runs the live voice loop for one browser connection: audio in,
// transcripts and in-character replies out, followed by streamed speech.
package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrClientClosed = errors.New("client connection closed")
	ErrQueueFull    = errors.New("client outbound queue full")
	ErrReadTimeout  = errors.New("client read timeout")
)

const (
	defaultOutboundQueue = 256
	inboundQueue         = 64
	writeTimeout         = 5 * time.Second
)

// Client is the outbound side of a browser connection as seen by the reply
// pipeline.
type Client interface {
	// Send queues ev, waiting for room until ctx is done.
	Send(ctx context.Context, ev Event) error
	// TrySend queues ev without waiting.
	TrySend(ev Event) error
	Closed() bool
}

type inboundFrame struct {
	messageType int
	data        []byte
}

// Conn wraps a browser WebSocket. A single writer goroutine owns all data
// writes, and a reader goroutine feeds ReadFrame so read timeouts never poison
// the underlying connection.
type Conn struct {
	ws *websocket.Conn

	out        chan []byte
	writerDone chan struct{}

	frames   chan inboundFrame
	readDone chan struct{}
	readErr  error

	closed     chan struct{}
	sendMu     sync.RWMutex  // held shared while enqueueing
	sealed     chan struct{} // closed once no enqueue can happen
	signalOnce sync.Once
	finishOnce sync.Once
}

func NewConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:         ws,
		out:        make(chan []byte, defaultOutboundQueue),
		writerDone: make(chan struct{}),
		frames:     make(chan inboundFrame, inboundQueue),
		readDone:   make(chan struct{}),
		closed:     make(chan struct{}),
		sealed:     make(chan struct{}),
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

func (c *Conn) readLoop() {
	defer close(c.readDone)
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		select {
		case c.frames <- inboundFrame{messageType: mt, data: data}:
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case data := <-c.out:
			if err := c.write(data); err != nil {
				c.signal()
				_ = c.ws.Close()
				return
			}
		case <-c.closed:
			// flush what was queued before the close
			<-c.sealed
			for {
				select {
				case data := <-c.out:
					if err := c.write(data); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *Conn) write(data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) signal() {
	c.signalOnce.Do(func() {
		close(c.closed)
		c.sendMu.Lock()
		close(c.sealed)
		c.sendMu.Unlock()
	})
}

// ReadFrame returns the next client message. ErrReadTimeout leaves the
// connection usable; any other error is final.
func (c *Conn) ReadFrame(ctx context.Context, timeout time.Duration) (int, []byte, error) {
	select {
	case f := <-c.frames:
		return f.messageType, f.data, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-c.frames:
		return f.messageType, f.data, nil
	case <-c.readDone:
		select {
		case f := <-c.frames:
			return f.messageType, f.data, nil
		default:
		}
		return 0, nil, c.readErr
	case <-c.closed:
		return 0, nil, ErrClientClosed
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case <-timer.C:
		return 0, nil, ErrReadTimeout
	}
}

func (c *Conn) Send(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.Closed() {
		return ErrClientClosed
	}
	select {
	case c.out <- data:
		return nil
	case <-c.closed:
		return ErrClientClosed
	case <-c.readDone:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) TrySend(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.Closed() {
		return ErrClientClosed
	}
	select {
	case c.out <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Closed reports whether the connection was closed locally or the client went away.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	case <-c.readDone:
		return true
	default:
		return false
	}
}

// Close flushes queued events, sends a close frame with code and closes the
// socket. Only the first call has any effect.
func (c *Conn) Close(code int) error {
	var err error
	c.finishOnce.Do(func() {
		c.signal()
		select {
		case <-c.writerDone:
		case <-time.After(writeTimeout):
		}
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
