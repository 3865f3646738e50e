package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nikhilbhutani/voicerelay/internal/metrics"
	"github.com/nikhilbhutani/voicerelay/internal/multimodal/stt"
)

// State is where the aggregator is in the current turn.
type State int

const (
	StateIdle State = iota
	StateListening
	StateTurnPartial
	StateTurnFinalRaw
	StateTurnQualified
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateTurnPartial:
		return "turn_partial"
	case StateTurnFinalRaw:
		return "turn_final_raw"
	case StateTurnQualified:
		return "turn_qualified"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Turn is a finished, formatted user utterance.
type Turn struct {
	Seq  int
	Text string
}

// TurnSink accepts a qualified turn without blocking. It reports false when the
// turn was dropped.
type TurnSink func(Turn) bool

const (
	defaultSampleRate = 16000
	defaultAudioQueue = 128
)

// Aggregator turns the transcription event stream for one connection into
// qualified turns.
type Aggregator struct {
	provider stt.StreamingProvider
	params   stt.StreamingParams
	client   Client
	sink     TurnSink
	connID   string

	audio chan []byte
	done  chan struct{}
	ended chan struct{} // closed when the upstream session is gone

	mu      sync.Mutex
	state   State
	seq     int
	session stt.StreamingSession

	closeOnce sync.Once
	endOnce   sync.Once
}

func NewAggregator(provider stt.StreamingProvider, sampleRate int, client Client, sink TurnSink, connID string) *Aggregator {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	return &Aggregator{
		provider: provider,
		params:   stt.StreamingParams{SampleRate: sampleRate, FormatTurns: true},
		client:   client,
		sink:     sink,
		connID:   connID,
		audio:    make(chan []byte, defaultAudioQueue),
		done:     make(chan struct{}),
		ended:    make(chan struct{}),
	}
}

// Open connects the upstream transcription session and starts forwarding audio.
func (a *Aggregator) Open(ctx context.Context) error {
	sess, err := a.provider.Connect(ctx, a.params, a)
	if err != nil {
		return fmt.Errorf("open transcription session: %w", err)
	}

	a.mu.Lock()
	if a.state == StateTerminated {
		a.mu.Unlock()
		_ = sess.Close()
		return errors.New("aggregator closed")
	}
	a.session = sess
	a.state = StateListening
	a.mu.Unlock()

	go a.forward(sess)
	return nil
}

func (a *Aggregator) forward(sess stt.StreamingSession) {
	for {
		select {
		case frame := <-a.audio:
			if err := sess.Stream(frame); err != nil {
				a.end("stream audio upstream", err)
				return
			}
		case <-a.done:
			return
		}
	}
}

// Stream hands one audio frame to the upstream writer. It never blocks; a
// frame that does not fit in the buffer is dropped.
func (a *Aggregator) Stream(frame []byte) bool {
	select {
	case <-a.done:
		return false
	case <-a.ended:
		return false
	default:
	}
	select {
	case a.audio <- frame:
		return true
	default:
		slog.Warn("audio buffer full, dropping frame", "conn_id", a.connID, "bytes", len(frame))
		return false
	}
}

// Ended is closed once the upstream session has terminated or failed. No
// further turns arrive after that.
func (a *Aggregator) Ended() <-chan struct{} {
	return a.ended
}

func (a *Aggregator) end(reason string, err error) {
	a.endOnce.Do(func() {
		a.mu.Lock()
		a.state = StateTerminated
		a.mu.Unlock()
		slog.Warn("transcription session ended", "conn_id", a.connID, "reason", reason, "error", err)
		close(a.ended)
	})
}

func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Close terminates the upstream session. Safe to call more than once.
func (a *Aggregator) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.state = StateTerminated
		sess := a.session
		a.mu.Unlock()

		close(a.done)
		if sess != nil {
			err = sess.Close()
		}
	})
	return err
}

func (a *Aggregator) OnBegin(ev stt.BeginEvent) {
	slog.Info("transcription session started", "conn_id", a.connID, "upstream_id", ev.ID)
}

func (a *Aggregator) OnTurn(ev stt.TurnEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("turn handler panic", "conn_id", a.connID, "panic", r)
		}
	}()

	a.mu.Lock()
	if a.state == StateTerminated {
		a.mu.Unlock()
		return
	}

	switch {
	case !ev.EndOfTurn:
		a.state = StateTurnPartial
		a.mu.Unlock()

	case !ev.TurnIsFormatted:
		a.state = StateTurnFinalRaw
		sess := a.session
		a.mu.Unlock()
		slog.Debug("turn awaiting formatting", "conn_id", a.connID, "text", ev.Transcript)
		if sess != nil {
			if err := sess.RequestFormatting(); err != nil {
				slog.Warn("request turn formatting", "conn_id", a.connID, "error", err)
			}
		}

	default:
		text := strings.TrimSpace(ev.Transcript)
		if text == "" {
			a.state = StateListening
			a.mu.Unlock()
			metrics.RecordTurn("empty")
			return
		}
		a.seq++
		turn := Turn{Seq: a.seq, Text: text}
		a.state = StateTurnQualified
		a.mu.Unlock()

		a.emit(turn)

		a.mu.Lock()
		if a.state == StateTurnQualified {
			a.state = StateListening
		}
		a.mu.Unlock()
	}
}

func (a *Aggregator) emit(turn Turn) {
	slog.Info("turn qualified", "conn_id", a.connID, "turn", turn.Seq, "text", turn.Text)

	if err := a.client.TrySend(transcriptEvent(turn.Text, turn.Seq)); err != nil {
		slog.Warn("queue transcript", "conn_id", a.connID, "turn", turn.Seq, "error", err)
	}
	if a.sink != nil && !a.sink(turn) {
		slog.Warn("turn dropped, reply queue full", "conn_id", a.connID, "turn", turn.Seq)
		metrics.RecordTurn("dropped")
		return
	}
	metrics.RecordTurn("qualified")
}

func (a *Aggregator) OnTermination(ev stt.TerminationEvent) {
	slog.Info("transcription session terminated",
		"conn_id", a.connID,
		"audio_seconds", ev.AudioDurationSeconds,
		"session_seconds", ev.SessionDurationSeconds,
	)
	a.end("upstream termination", nil)
}

func (a *Aggregator) OnError(err error) {
	slog.Error("transcription error", "conn_id", a.connID, "error", err)
	if errors.Is(err, stt.ErrSessionClosed) {
		a.end("upstream read failed", err)
	}
}
