// Package models maps model sizes to whisper.cpp ggml weight files and fetches them.
package models

import (
	"fmt"
	"strings"
)

// Size is one of the supported model sizes.
type Size string

const (
	SizeTiny   Size = "tiny"
	SizeBase   Size = "base"
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// DefaultSize is used when no size is configured.
const DefaultSize = SizeMedium

const baseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// ModelInfo describes a downloadable ggml model.
type ModelInfo struct {
	Size     Size
	Filename string // "ggml-medium.bin"
	URL      string
	Bytes    int64 // approximate, for progress when the server omits Content-Length
}

// Registry lists every supported size, smallest first.
var Registry = []ModelInfo{
	{Size: SizeTiny, Filename: "ggml-tiny.bin", Bytes: 75 << 20},
	{Size: SizeBase, Filename: "ggml-base.bin", Bytes: 142 << 20},
	{Size: SizeSmall, Filename: "ggml-small.bin", Bytes: 466 << 20},
	{Size: SizeMedium, Filename: "ggml-medium.bin", Bytes: 1533 << 20},
	{Size: SizeLarge, Filename: "ggml-large-v3.bin", Bytes: 3095 << 20},
}

func init() {
	for i := range Registry {
		Registry[i].URL = baseURL + Registry[i].Filename
	}
}

// Lookup returns the model for a size name (case-insensitive).
func Lookup(name string) (ModelInfo, bool) {
	size := Size(strings.ToLower(strings.TrimSpace(name)))
	for _, m := range Registry {
		if m.Size == size {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// ParseSize validates a size name.
func ParseSize(name string) (Size, error) {
	m, ok := Lookup(name)
	if !ok {
		return "", fmt.Errorf("model size must be one of %s, got %q", strings.Join(SizeNames(), "|"), name)
	}
	return m.Size, nil
}

// SizeNames returns the valid size names in registry order.
func SizeNames() []string {
	names := make([]string, 0, len(Registry))
	for _, m := range Registry {
		names = append(names, string(m.Size))
	}
	return names
}
