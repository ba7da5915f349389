package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/yourusername/voicenote-transcription/internal/audio"
	"github.com/yourusername/voicenote-transcription/internal/protocol"
	"github.com/yourusername/voicenote-transcription/internal/transcription"
)

// handleTranscribe accepts one audio file, either as the raw body with
// ?format=ogg or as a multipart "file" part, and returns the transcript.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	body, name, err := uploadedFile(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, protocol.ErrorCodeBadRequest, err.Error())
		return
	}
	defer body.Close()

	formatName := r.URL.Query().Get("format")
	if formatName == "" {
		formatName = filepath.Ext(name)
	}
	format, ok := audio.ParseFormat(formatName)
	if !ok {
		s.writeError(w, http.StatusBadRequest, protocol.ErrorCodeUnsupported, protocol.TextUnsupported)
		return
	}

	in, release, err := s.spool(body, format)
	if err != nil {
		s.writeSpoolError(w, err)
		return
	}

	res, err := s.await(r.Context(), in, release)
	if err != nil {
		s.logger.Warn("Client went away before transcription finished: %v", err)
		return
	}
	s.logResult(res)

	status := http.StatusOK
	if res.Failed() {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, transcriptData(res))
}

func uploadedFile(r *http.Request) (io.ReadCloser, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, "", nil
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("multipart upload needs a \"file\" part: %w", err)
	}
	return file, header.Filename, nil
}

// spool copies an upload to a per-request temp file. release deletes it and is
// safe to call once the pipeline is done with the input.
func (s *Server) spool(body io.Reader, format audio.Format) (audio.Input, func(), error) {
	f, err := os.CreateTemp(s.cfg.TempDir, "voice-*"+format.Extension())
	if err != nil {
		return audio.Input{}, nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	release := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to remove temp file %s: %v", path, err)
		} else {
			s.logger.Debug("Temp file removed: %s", path)
		}
	}

	_, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if copyErr != nil {
		release()
		return audio.Input{}, nil, copyErr
	}
	if closeErr != nil {
		release()
		return audio.Input{}, nil, closeErr
	}

	in := audio.Input{Path: path, Format: format}
	size, err := audio.ValidateInput(in)
	if err != nil {
		release()
		return audio.Input{}, nil, err
	}

	s.logger.DebugWithFields("Upload spooled", map[string]interface{}{
		"path":  path,
		"bytes": size,
	})
	return in, release, nil
}

// await runs the input through the pipeline. If ctx ends first the request
// keeps running and its temp file is removed when it finishes.
func (s *Server) await(ctx context.Context, in audio.Input, release func()) (transcription.Result, error) {
	f := s.cfg.Pipeline.TranscribeAsync(in)
	res, err := f.Wait(ctx)
	if err != nil {
		go func() {
			<-f.Done()
			release()
		}()
		return res, err
	}
	release()
	return res, nil
}

func (s *Server) logResult(res transcription.Result) {
	fields := map[string]interface{}{
		"request_id": res.RequestID,
		"degraded":   res.Degraded,
		"audio":      res.AudioDuration.String(),
		"elapsed":    res.Elapsed.String(),
	}
	switch {
	case res.Failed():
		fields["reason"] = res.Failure.String()
		fields["error"] = fmt.Sprintf("%+v", res.Err)
		s.logger.ErrorWithFields("Transcription failed", fields)
	case res.Empty():
		s.logger.WarnWithFields("Empty transcription", fields)
	default:
		fields["chars"] = len([]rune(res.Text))
		s.logger.InfoWithFields("Transcription complete", fields)
	}
}

func transcriptData(res transcription.Result) protocol.TranscriptData {
	data := protocol.TranscriptData{
		RequestID:  res.RequestID,
		Text:       res.Text,
		Status:     protocol.ResultOK,
		Degraded:   res.Degraded,
		DurationMs: res.Elapsed.Milliseconds(),
	}
	switch {
	case res.Failed():
		data.Status = protocol.ResultFailed
		data.Message = protocol.TextFailed
	case res.Empty():
		data.Status = protocol.ResultEmpty
		data.Message = protocol.TextEmpty
	}
	return data
}

func (s *Server) writeSpoolError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, audio.ErrEmptyInput):
		s.writeError(w, http.StatusBadRequest, protocol.ErrorCodeEmptyInput, "audio file is empty")
	case errors.As(err, &tooLarge):
		s.writeError(w, http.StatusRequestEntityTooLarge, protocol.ErrorCodeBadRequest, err.Error())
	default:
		s.logger.Error("Failed to store upload: %v", err)
		s.writeError(w, http.StatusInternalServerError, protocol.ErrorCodeInternal, protocol.TextFailed)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, protocol.ErrorData{Code: code, Message: message})
}
