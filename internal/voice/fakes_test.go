package voice

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/nikhilbhutani/voicerelay/internal/agent"
	"github.com/nikhilbhutani/voicerelay/internal/multimodal/stt"
	"github.com/nikhilbhutani/voicerelay/internal/multimodal/tts"
	"github.com/nikhilbhutani/voicerelay/internal/session"
	"github.com/nikhilbhutani/voicerelay/internal/usage"
)

type fakeClient struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (c *fakeClient) Send(ctx context.Context, ev Event) error { return c.TrySend(ev) }

func (c *fakeClient) TrySend(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeClient) sent() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *fakeClient) ofType(typ string) []Event {
	var out []Event
	for _, ev := range c.sent() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fakeSTTSession struct {
	mu             sync.Mutex
	frames         [][]byte
	formatRequests int
	closes         int
	streamErr      error // returned by Stream once set
}

func (s *fakeSTTSession) Stream(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamErr != nil {
		return s.streamErr
	}
	s.frames = append(s.frames, audio)
	return nil
}

func (s *fakeSTTSession) fail(err error) {
	s.mu.Lock()
	s.streamErr = err
	s.mu.Unlock()
}

func (s *fakeSTTSession) RequestFormatting() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formatRequests++
	return nil
}

func (s *fakeSTTSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSTTSession) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *fakeSTTSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeTranscriber struct {
	mu      sync.Mutex
	session *fakeSTTSession
	handler stt.StreamingHandler
	params  stt.StreamingParams
	err     error
}

func (p *fakeTranscriber) Connect(ctx context.Context, params stt.StreamingParams, h stt.StreamingHandler) (stt.StreamingSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.params = params
	p.handler = h
	if p.session == nil {
		p.session = &fakeSTTSession{}
	}
	return p.session, nil
}

func (p *fakeTranscriber) current() *fakeSTTSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *fakeTranscriber) turnHandler() stt.StreamingHandler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler
}

type fakeGenerator struct {
	mu       sync.Mutex
	calls    []string
	endpoint string
	reply    func(text string) string
}

func (g *fakeGenerator) Generate(ctx context.Context, history []session.Message, current string) agent.Reply {
	g.mu.Lock()
	g.calls = append(g.calls, current)
	g.endpoint = usage.EndpointFromContext(ctx)
	g.mu.Unlock()

	text := "Hmph. " + current
	if g.reply != nil {
		text = g.reply(current)
	}
	return agent.Reply{Text: text, Message: session.Message{Role: session.RoleAssistant, Text: text}}
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakeSpeaker struct {
	mu    sync.Mutex
	texts []string
}

func (s *fakeSpeaker) Stream(ctx context.Context, text string, client Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
}

func (s *fakeSpeaker) spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// fakeTTSConn replays scripted upstream messages. A nil entry yields a
// receive timeout.
type fakeTTSConn struct {
	dialer  *fakeDialer
	mu      sync.Mutex
	sent    []json.RawMessage
	script  [][]byte
	hold    chan struct{}
	closed  bool
	receive int
}

func (c *fakeTTSConn) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeTTSConn) Receive(timeout time.Duration) ([]byte, error) {
	if c.hold != nil {
		<-c.hold
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receive++
	if len(c.script) == 0 {
		return nil, tts.ErrReceiveTimeout
	}
	next := c.script[0]
	c.script = c.script[1:]
	if next == nil {
		return nil, tts.ErrReceiveTimeout
	}
	return next, nil
}

func (c *fakeTTSConn) Close() error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if !already {
		c.dialer.released()
	}
	return nil
}

type fakeDialer struct {
	mu        sync.Mutex
	failures  int
	dials     int
	active    int
	maxActive int
	dialTimes []time.Time
	conns     []*fakeTTSConn
	script    [][]byte
	hold      chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, contextID string) (tts.StreamConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.dialTimes = append(d.dialTimes, time.Now())
	if d.dials <= d.failures {
		return nil, errors.New("connection refused")
	}
	d.active++
	if d.active > d.maxActive {
		d.maxActive = d.active
	}
	c := &fakeTTSConn{
		dialer: d,
		script: append([][]byte(nil), d.script...),
		hold:   d.hold,
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) released() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active--
}

func (d *fakeDialer) snapshot() (dials, active, maxActive int, times []time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials, d.active, d.maxActive, append([]time.Time(nil), d.dialTimes...)
}
