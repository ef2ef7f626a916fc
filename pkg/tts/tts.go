package tts

import (
	"context"
)

// Result is the synthesized audio returned by a gateway.
type Result struct {
	Audio  []byte
	Format string // "mp3", "wav", ...
}

// SpeechSynthesizer turns text into audio. Implementations wrap an
// external text-to-speech API; the worker does not care which one.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (*Result, error)
}
