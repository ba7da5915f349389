package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format is the container/codec family of an input, derived from its extension.
type Format string

const (
	FormatOgg  Format = "ogg" // voice notes: Opus (or Vorbis) in Ogg
	FormatOga  Format = "oga"
	FormatOpus Format = "opus"
	FormatMP3  Format = "mp3" // audio files
	FormatWAV  Format = "wav"
	FormatM4A  Format = "m4a"
	FormatWebM Format = "webm"
	FormatFLAC Format = "flac"
)

var supportedFormats = map[Format]bool{
	FormatOgg: true, FormatOga: true, FormatOpus: true, FormatMP3: true,
	FormatWAV: true, FormatM4A: true, FormatWebM: true, FormatFLAC: true,
}

var (
	ErrEmptyInput        = errors.New("audio input is empty")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Input is one caller-owned audio resource. The pipeline only reads it and never
// keeps it past the call.
type Input struct {
	Path   string
	Format Format
}

// NewInput builds an Input whose format comes from the file extension.
func NewInput(path string) Input {
	f, _ := ParseFormat(filepath.Ext(path))
	return Input{Path: path, Format: f}
}

// ParseFormat accepts "ogg", ".ogg", "OGG" and returns the Format.
func ParseFormat(s string) (Format, bool) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
	return f, supportedFormats[f]
}

// Extension returns the file extension (with dot) for the format.
func (f Format) Extension() string {
	return "." + string(f)
}

// ValidateInput is the caller-side guard run before an input is handed to the
// pipeline: the file must exist, be non-empty and have a supported format.
func ValidateInput(in Input) (int64, error) {
	if !supportedFormats[in.Format] {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, in.Format)
	}
	stat, err := os.Stat(in.Path)
	if err != nil {
		return 0, fmt.Errorf("audio input not accessible: %w", err)
	}
	if stat.IsDir() {
		return 0, fmt.Errorf("audio input %s is a directory", in.Path)
	}
	if stat.Size() == 0 {
		return 0, ErrEmptyInput
	}
	return stat.Size(), nil
}
