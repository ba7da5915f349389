package audio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// Decoder turns a container into interleaved float32 PCM in [-1, 1].
type Decoder interface {
	Decode(ctx context.Context, in Input) (*goaudio.Float32Buffer, error)
}

// MultiDecoder picks a native decoder by format and falls back to ffmpeg for
// everything else (Opus voice notes in particular).
type MultiDecoder struct {
	FFmpeg *FFmpegDecoder
}

// NewMultiDecoder creates the default decoder chain.
func NewMultiDecoder(ffmpegPath string) *MultiDecoder {
	return &MultiDecoder{FFmpeg: &FFmpegDecoder{Path: ffmpegPath, SampleRate: 48000, Channels: 1}}
}

// Decode implements Decoder.
func (d *MultiDecoder) Decode(ctx context.Context, in Input) (*goaudio.Float32Buffer, error) {
	switch in.Format {
	case FormatWAV:
		return decodeWAV(in.Path)
	case FormatMP3:
		return decodeMP3(in.Path)
	case FormatOgg, FormatOga:
		vorbis, err := isOggVorbis(in.Path)
		if err != nil {
			return nil, err
		}
		if vorbis {
			return decodeVorbis(in.Path)
		}
	}
	if d.FFmpeg == nil {
		return nil, fmt.Errorf("%w: no decoder for %q", ErrUnsupportedFormat, in.Format)
	}
	return d.FFmpeg.Decode(ctx, in)
}

func decodeWAV(path string) (*goaudio.Float32Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV samples: %w", err)
	}

	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(dec.BitDepth)
	}
	out, err := intToFloat(buf.Data, depth)
	if err != nil {
		return nil, err
	}

	return &goaudio.Float32Buffer{
		Format:         &goaudio.Format{NumChannels: buf.Format.NumChannels, SampleRate: buf.Format.SampleRate},
		Data:           out,
		SourceBitDepth: depth,
	}, nil
}

// intToFloat scales integer PCM of the given bit depth to [-1, 1].
func intToFloat(data []int, depth int) ([]float32, error) {
	if depth <= 0 || depth > 32 {
		return nil, fmt.Errorf("unsupported WAV bit depth %d", depth)
	}
	out := make([]float32, len(data))
	if depth == 8 {
		// 8-bit WAV is unsigned
		for i, v := range data {
			out[i] = float32(v-128) / 128
		}
		return out, nil
	}
	scale := float32(int64(1) << uint(depth-1))
	for i, v := range data {
		out[i] = float32(v) / scale
	}
	return out, nil
}

func decodeMP3(path string) (*goaudio.Float32Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 stream: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	// go-mp3 always yields 16-bit little-endian stereo
	out := pcm16ToFloat(raw)
	return &goaudio.Float32Buffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: dec.SampleRate()},
		Data:           out,
		SourceBitDepth: 16,
	}, nil
}

func decodeVorbis(path string) (*goaudio.Float32Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, format, err := oggvorbis.ReadAll(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to decode Vorbis: %w", err)
	}
	return &goaudio.Float32Buffer{
		Format: &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:   data,
	}, nil
}

// isOggVorbis peeks at the first Ogg page for the Vorbis identification header.
func isOggVorbis(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 64)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false, fmt.Errorf("failed to read Ogg header: %w", err)
	}
	head = head[:n]
	if !bytes.HasPrefix(head, []byte("OggS")) {
		return false, fmt.Errorf("not an Ogg stream")
	}
	return bytes.Contains(head, []byte("\x01vorbis")), nil
}

// FFmpegDecoder shells out to ffmpeg and reads raw float32 samples from stdout.
type FFmpegDecoder struct {
	Path       string
	SampleRate int
	Channels   int
}

// Decode implements Decoder.
func (d *FFmpegDecoder) Decode(ctx context.Context, in Input) (*goaudio.Float32Buffer, error) {
	cmd := exec.CommandContext(ctx, d.Path,
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", in.Path,
		"-vn",
		"-f", "f32le", "-acodec", "pcm_f32le",
		"-ac", strconv.Itoa(d.Channels),
		"-ar", strconv.Itoa(d.SampleRate),
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	raw := stdout.Bytes()
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return &goaudio.Float32Buffer{
		Format:         &goaudio.Format{NumChannels: d.Channels, SampleRate: d.SampleRate},
		Data:           samples,
		SourceBitDepth: 32,
	}, nil
}

func pcm16ToFloat(raw []byte) []float32 {
	out := make([]float32, len(raw)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768.0
	}
	return out
}
