// Package live defines the Transport interface for bidirectional realtime
// voice backends.
//
// A live transport wraps a streaming voice AI endpoint that accepts encoded
// microphone audio and returns synthesised speech in a single stateful
// session. The central abstraction is [SessionHandle]: outbound audio goes in
// through a fire-and-forget sink, and everything the server emits — audio
// chunks, barge-in interruptions, transcriptions, errors — comes back on one
// ordered event channel, dispatched by tag. There is no implicit callback
// registry: the session owner subscribes once and reads until the channel
// closes.
package live

import "context"

// EventType tags an inbound session event.
type EventType int

const (
	// EventAudio carries a text-encoded PCM16 audio chunk from the model.
	EventAudio EventType = iota

	// EventInterrupted signals server-side barge-in detection: the user spoke
	// over the model, and all pending playback must be discarded.
	EventInterrupted

	// EventTranscript carries a text transcription of either the user's
	// speech (as recognised by the model) or the model's spoken output.
	EventTranscript

	// EventError carries a non-fatal error reported by the server. The
	// session remains open.
	EventError
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case EventAudio:
		return "AUDIO"
	case EventInterrupted:
		return "INTERRUPTED"
	case EventTranscript:
		return "TRANSCRIPT"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// TranscriptRole identifies the speaker of a transcript event.
type TranscriptRole string

const (
	RoleUser  TranscriptRole = "user"
	RoleModel TranscriptRole = "model"
)

// Event is a single inbound session event. Exactly the fields relevant to
// Type are set.
type Event struct {
	Type EventType

	// Data is the text-encoded audio payload (EventAudio).
	Data string

	// Role and Text describe a transcription (EventTranscript).
	Role TranscriptRole
	Text string

	// Err is the reported error (EventError).
	Err error
}

// EncodedChunk is one frame's PCM16 payload, already transport-encoded, with
// its mime/rate tag (e.g. "audio/pcm;rate=16000"). Ownership transfers to the
// transport on send.
type EncodedChunk struct {
	Data     string
	MIMEType string
}

// SessionConfig is the initial configuration for a live session. All fields
// are fixed for the session's lifetime.
type SessionConfig struct {
	// Voice selects the prebuilt voice used for synthesised speech.
	Voice string

	// Instructions is the behavioural system instruction applied to the
	// session.
	Instructions string

	// Transcribe enables input/output transcription events when the backend
	// supports them.
	Transcribe bool
}

// SessionHandle is an open live session.
//
// Events are delivered strictly in the order the server sent them; the
// channel is closed when the session ends (server close, fatal error, or
// [SessionHandle.Close]). After the channel closes, Err reports the fatal
// error, if any.
type SessionHandle interface {
	// SendRealtimeInput delivers one encoded audio chunk to the model.
	// Fire-and-forget: a failed send loses that chunk only, and the caller is
	// expected to log and continue.
	SendRealtimeInput(chunk EncodedChunk) error

	// Events returns the session's single ordered inbound event channel.
	Events() <-chan Event

	// Err returns the error that ended the session, or nil after a clean
	// close. Valid once the event channel has closed.
	Err() error

	// Close terminates the session and releases its resources. Idempotent.
	Close() error
}

// Transport is the abstraction over a realtime voice backend.
type Transport interface {
	// Open establishes a new session and blocks until the backend confirms
	// it is ready to accept audio. A connection or setup failure is returned
	// to the caller and is not retried.
	Open(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
