package voice

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/voicerelay/internal/multimodal/stt"
)

type turnRecorder struct {
	turns []Turn
	full  bool
}

func (r *turnRecorder) sink(t Turn) bool {
	if r.full {
		return false
	}
	r.turns = append(r.turns, t)
	return true
}

func openAggregator(t *testing.T) (*Aggregator, *fakeTranscriber, *fakeClient, *turnRecorder) {
	t.Helper()
	provider := &fakeTranscriber{}
	client := &fakeClient{}
	rec := &turnRecorder{}
	agg := NewAggregator(provider, 0, client, rec.sink, "conn-test")
	require.NoError(t, agg.Open(context.Background()))
	t.Cleanup(func() { agg.Close() })
	return agg, provider, client, rec
}

func TestAggregator_OpenRequestsFormattedTurns(t *testing.T) {
	agg, provider, _, _ := openAggregator(t)

	assert.Equal(t, StateListening, agg.State())
	assert.Equal(t, 16000, provider.params.SampleRate)
	assert.True(t, provider.params.FormatTurns)
}

func TestAggregator_PartialTurnEmitsNothing(t *testing.T) {
	agg, provider, client, rec := openAggregator(t)

	agg.OnTurn(stt.TurnEvent{TurnOrder: 0, Transcript: "what's the"})

	assert.Equal(t, StateTurnPartial, agg.State())
	assert.Empty(t, client.sent())
	assert.Empty(t, rec.turns)
	assert.Equal(t, 0, provider.session.formatRequests)
}

func TestAggregator_UnformattedEndOfTurnRequestsFormatting(t *testing.T) {
	agg, provider, client, rec := openAggregator(t)

	agg.OnTurn(stt.TurnEvent{Transcript: "whats the weather in paris", EndOfTurn: true})

	assert.Equal(t, StateTurnFinalRaw, agg.State())
	assert.Equal(t, 1, provider.session.formatRequests)
	assert.Empty(t, client.sent())
	assert.Empty(t, rec.turns)

	agg.OnTurn(stt.TurnEvent{Transcript: "What's the weather in Paris?", EndOfTurn: true, TurnIsFormatted: true})
	assert.Equal(t, []Turn{{Seq: 1, Text: "What's the weather in Paris?"}}, rec.turns)
}

func TestAggregator_EmptyFormattedTurnIsDiscarded(t *testing.T) {
	agg, _, client, rec := openAggregator(t)

	agg.OnTurn(stt.TurnEvent{Transcript: "   ", EndOfTurn: true, TurnIsFormatted: true})

	assert.Equal(t, StateListening, agg.State())
	assert.Empty(t, client.sent())
	assert.Empty(t, rec.turns)
}

func TestAggregator_QualifiedTurnEmitsTranscriptAndTurn(t *testing.T) {
	agg, _, client, rec := openAggregator(t)

	agg.OnTurn(stt.TurnEvent{Transcript: "what's the", TurnOrder: 0})
	agg.OnTurn(stt.TurnEvent{Transcript: "whats the weather in paris", EndOfTurn: true, TurnOrder: 0})
	agg.OnTurn(stt.TurnEvent{Transcript: "  What's the weather in Paris?  ", EndOfTurn: true, TurnIsFormatted: true, TurnOrder: 0})
	agg.OnTurn(stt.TurnEvent{Transcript: "Tell me a joke.", EndOfTurn: true, TurnIsFormatted: true, TurnOrder: 1})

	assert.Equal(t, StateListening, agg.State())
	assert.Equal(t, []Event{
		{Type: EventTranscript, Text: "What's the weather in Paris?", Turn: 1},
		{Type: EventTranscript, Text: "Tell me a joke.", Turn: 2},
	}, client.sent())
	assert.Equal(t, []Turn{
		{Seq: 1, Text: "What's the weather in Paris?"},
		{Seq: 2, Text: "Tell me a joke."},
	}, rec.turns)
}

func TestAggregator_FullReplyQueueStillSendsTranscript(t *testing.T) {
	agg, _, client, rec := openAggregator(t)
	rec.full = true

	agg.OnTurn(stt.TurnEvent{Transcript: "Hello.", EndOfTurn: true, TurnIsFormatted: true})

	assert.Len(t, client.ofType(EventTranscript), 1)
	assert.Equal(t, StateListening, agg.State())
}

func TestAggregator_HandlerPanicIsContained(t *testing.T) {
	provider := &fakeTranscriber{}
	agg := NewAggregator(provider, 16000, &fakeClient{}, func(Turn) bool { panic("boom") }, "conn-test")
	require.NoError(t, agg.Open(context.Background()))
	defer agg.Close()

	assert.NotPanics(t, func() {
		agg.OnTurn(stt.TurnEvent{Transcript: "Hello.", EndOfTurn: true, TurnIsFormatted: true})
	})
	agg.OnTurn(stt.TurnEvent{Transcript: "still", TurnOrder: 1})
	assert.Equal(t, StateTurnPartial, agg.State())
}

func TestAggregator_StreamForwardsAudio(t *testing.T) {
	agg, provider, _, _ := openAggregator(t)

	assert.True(t, agg.Stream([]byte{1, 2}))
	assert.True(t, agg.Stream([]byte{3, 4}))

	assert.Eventually(t, func() bool { return provider.session.frameCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestAggregator_CloseIsIdempotentAndTerminal(t *testing.T) {
	agg, provider, client, rec := openAggregator(t)

	require.NoError(t, agg.Close())
	require.NoError(t, agg.Close())

	assert.Equal(t, StateTerminated, agg.State())
	assert.Equal(t, 1, provider.session.closeCount())
	assert.False(t, agg.Stream([]byte{1}))

	agg.OnTurn(stt.TurnEvent{Transcript: "late", EndOfTurn: true, TurnIsFormatted: true})
	assert.Empty(t, client.sent())
	assert.Empty(t, rec.turns)
	assert.Equal(t, StateTerminated, agg.State())
}

func TestAggregator_OpenFailure(t *testing.T) {
	provider := &fakeTranscriber{err: assert.AnError}
	agg := NewAggregator(provider, 16000, &fakeClient{}, nil, "conn-test")

	err := agg.Open(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, StateIdle, agg.State())
}

func assertEnded(t *testing.T, agg *Aggregator) {
	t.Helper()
	select {
	case <-agg.Ended():
	case <-time.After(time.Second):
		t.Fatal("aggregator did not end")
	}
	assert.Equal(t, StateTerminated, agg.State())
	assert.False(t, agg.Stream([]byte{1}))
}

func TestAggregator_UpstreamTerminationEnds(t *testing.T) {
	agg, _, client, rec := openAggregator(t)

	agg.OnTermination(stt.TerminationEvent{AudioDurationSeconds: 3})
	assertEnded(t, agg)

	agg.OnTurn(stt.TurnEvent{Transcript: "Too late.", EndOfTurn: true, TurnIsFormatted: true})
	assert.Empty(t, client.sent())
	assert.Empty(t, rec.turns)
}

func TestAggregator_SessionLossEnds(t *testing.T) {
	agg, _, _, _ := openAggregator(t)

	agg.OnError(assert.AnError)
	select {
	case <-agg.Ended():
		t.Fatal("transient error ended the aggregator")
	default:
	}
	assert.Equal(t, StateListening, agg.State())

	agg.OnError(fmt.Errorf("%w: connection reset", stt.ErrSessionClosed))
	assertEnded(t, agg)
}

func TestAggregator_StreamFailureEnds(t *testing.T) {
	agg, provider, _, _ := openAggregator(t)
	provider.session.fail(stt.ErrSessionClosed)

	assert.True(t, agg.Stream([]byte{1}))
	assertEnded(t, agg)
	assert.Equal(t, 0, provider.session.frameCount())

	require.NoError(t, agg.Close())
	assert.Equal(t, 1, provider.session.closeCount())
}
