package voice

// Event is a JSON message sent to the browser.
type Event struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Audio string `json:"audio,omitempty"`
	Turn  int    `json:"turn,omitempty"`
}

const (
	EventTranscript = "transcript"
	EventAIResponse = "ai_response"
	EventAudioChunk = "audio_chunk"
	EventPing       = "ping"
)

func transcriptEvent(text string, turn int) Event {
	return Event{Type: EventTranscript, Text: text, Turn: turn}
}

func aiResponseEvent(text string, turn int) Event {
	return Event{Type: EventAIResponse, Text: text, Turn: turn}
}

func audioChunkEvent(b64 string) Event {
	return Event{Type: EventAudioChunk, Audio: b64}
}

func pingEvent() Event {
	return Event{Type: EventPing}
}
