package protocol

import (
	"encoding/json"
	"time"
)

// MessageType defines the type of message being sent
type MessageType string

const (
	// Control messages
	MessageTypeTranscribeStart MessageType = "transcribe.start"
	MessageTypeControlPing     MessageType = "control.ping"
	MessageTypeControlPong     MessageType = "control.pong"

	// Progress of a request
	MessageTypeStatus MessageType = "status"

	// Transcription results
	MessageTypeTranscriptFinal MessageType = "transcript.final"

	// Errors
	MessageTypeError MessageType = "error"
)

// Message is the envelope exchanged over the websocket
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds a message with data marshaled to JSON.
func NewMessage(t MessageType, data interface{}) (*Message, error) {
	msg := &Message{Type: t, Timestamp: time.Now().UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return msg, nil
}

// TranscribeStartData announces the audio frame that follows
type TranscribeStartData struct {
	Format string `json:"format"` // file extension, e.g. "ogg" or "mp3"
}

// Status values reported while a request is in flight
const (
	StatusProcessing  = "processing"
	StatusRecognizing = "recognizing"
)

// StatusData reports request progress
type StatusData struct {
	RequestID string `json:"request_id,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// Result statuses
const (
	ResultOK     = "ok"
	ResultEmpty  = "empty"
	ResultFailed = "failed"
)

// TranscriptData contains transcription results
type TranscriptData struct {
	RequestID  string `json:"request_id"`
	Text       string `json:"text"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Degraded   bool   `json:"degraded,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Error codes
const (
	ErrorCodeBadRequest  = "bad_request"
	ErrorCodeEmptyInput  = "empty_input"
	ErrorCodeUnsupported = "unsupported_format"
	ErrorCodeInternal    = "internal"
)

// ErrorData contains error information
type ErrorData struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// User-facing texts for the chat collaborator
const (
	TextProcessing  = "🎤 Обробляю голосочок..."
	TextRecognizing = "🔄 Розпізнаю мовлення..."
	TextEmpty       = "❌ Не вдалося розпізнати мовлення. Спробуйте говорити чіткіше."
	TextFailed      = "❌ Помилка при обробці голосового повідомлення. Спробуйте ще раз."
	TextUnsupported = "❌ Непідтримуваний тип файлу"
)
