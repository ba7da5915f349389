package transcription

import (
	"bytes"
	"math"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// Gate names, used as metric labels.
const (
	GateCompressionRatio = "compression_ratio"
	GateLogProb          = "log_prob"
	GateNoSpeech         = "no_speech"
)

// CompressionRatio is len(text) / len(zlib(text)) over the UTF-8 bytes.
// Repetitive hallucinations compress well and score high.
func CompressionRatio(text string) float64 {
	if text == "" {
		return 0
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, _ = w.Write([]byte(text))
	_ = w.Close()
	if buf.Len() == 0 {
		return 0
	}
	return float64(len(text)) / float64(buf.Len())
}

// rejectedBy returns the first gate the segment fails, or "" if it passes.
// Unknown scores pass their gate. A high no-speech probability only marks
// the segment as silence when the decoder was not confident in its text.
func rejectedBy(seg Segment, opts DecodeOptions) string {
	if known(seg.CompressionRatio) && seg.CompressionRatio > opts.CompressionRatioThreshold {
		return GateCompressionRatio
	}
	confident := known(seg.AvgLogProb) && seg.AvgLogProb > opts.LogProbThreshold
	if known(seg.NoSpeechProb) && seg.NoSpeechProb > opts.NoSpeechThreshold && !confident {
		return GateNoSpeech
	}
	if known(seg.AvgLogProb) && seg.AvgLogProb < opts.LogProbThreshold {
		return GateLogProb
	}
	return ""
}

func known(v float64) bool {
	return !math.IsNaN(v)
}

// joinSegments joins segment texts with single spaces.
func joinSegments(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
