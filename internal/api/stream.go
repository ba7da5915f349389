package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yourusername/voicenote-transcription/internal/audio"
	"github.com/yourusername/voicenote-transcription/internal/protocol"
)

// streamSession is one websocket connection. The client announces a format
// with transcribe.start, sends the audio as one binary frame and receives
// status updates followed by transcript.final or error.
type streamSession struct {
	s      *Server
	conn   *websocket.Conn
	id     string
	format *audio.Format
}

// handleStream handles the websocket front-end
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade to WebSocket: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.MaxUploadBytes)

	sess := &streamSession{s: s, conn: conn, id: uuid.New().String()}
	s.logger.Info("New stream connection %s", sess.id)

	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("WebSocket read error (session %s): %v", sess.id, err)
			break
		}

		switch kind {
		case websocket.TextMessage:
			sess.handleControl(payload)
		case websocket.BinaryMessage:
			sess.handleAudio(payload)
		}
	}

	s.logger.Info("Stream connection closed for session %s", sess.id)
}

func (ss *streamSession) handleControl(payload []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		ss.sendError("", protocol.ErrorCodeBadRequest, "invalid message")
		return
	}

	switch msg.Type {
	case protocol.MessageTypeControlPing:
		ss.send(protocol.MessageTypeControlPong, nil)

	case protocol.MessageTypeTranscribeStart:
		var start protocol.TranscribeStartData
		if err := json.Unmarshal(msg.Data, &start); err != nil {
			ss.sendError("", protocol.ErrorCodeBadRequest, "invalid transcribe.start data")
			return
		}
		format, ok := audio.ParseFormat(start.Format)
		if !ok {
			ss.sendError("", protocol.ErrorCodeUnsupported, protocol.TextUnsupported)
			return
		}
		ss.format = &format

	default:
		ss.s.logger.Warn("Unknown message type: %s", msg.Type)
	}
}

func (ss *streamSession) handleAudio(payload []byte) {
	if ss.format == nil {
		ss.sendError("", protocol.ErrorCodeBadRequest, "send transcribe.start before audio")
		return
	}
	format := *ss.format
	ss.format = nil

	ss.send(protocol.MessageTypeStatus, protocol.StatusData{
		Status:  protocol.StatusProcessing,
		Message: protocol.TextProcessing,
	})

	in, release, err := ss.s.spool(bytes.NewReader(payload), format)
	if err != nil {
		if errors.Is(err, audio.ErrEmptyInput) {
			ss.sendError("", protocol.ErrorCodeEmptyInput, "audio file is empty")
		} else {
			ss.s.logger.Error("Failed to store upload: %v", err)
			ss.sendError("", protocol.ErrorCodeInternal, protocol.TextFailed)
		}
		return
	}

	ss.send(protocol.MessageTypeStatus, protocol.StatusData{
		Status:  protocol.StatusRecognizing,
		Message: protocol.TextRecognizing,
	})

	// the connection has no deadline of its own; requests run to completion
	res, err := ss.s.await(context.Background(), in, release)
	if err != nil {
		ss.sendError("", protocol.ErrorCodeInternal, protocol.TextFailed)
		return
	}
	ss.s.logResult(res)

	if res.Failed() {
		ss.sendError(res.RequestID, protocol.ErrorCodeInternal, protocol.TextFailed)
		return
	}
	ss.send(protocol.MessageTypeTranscriptFinal, transcriptData(res))
}

func (ss *streamSession) sendError(requestID, code, message string) {
	ss.send(protocol.MessageTypeError, protocol.ErrorData{
		RequestID: requestID,
		Code:      code,
		Message:   message,
	})
}

func (ss *streamSession) send(t protocol.MessageType, data interface{}) {
	msg, err := protocol.NewMessage(t, data)
	if err != nil {
		ss.s.logger.Error("Failed to marshal %s message: %v", t, err)
		return
	}
	if err := ss.conn.WriteJSON(msg); err != nil {
		ss.s.logger.Error("Failed to send %s to session %s: %v", t, ss.id, err)
	}
}
