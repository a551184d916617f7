// Package speech provides the text-to-speech capability used for operator
// announcements. At most one utterance plays at a time; a new Speak
// supersedes whatever is playing.
package speech

import (
	"context"
	"errors"
)

// Default voice parameters for operator announcements.
const (
	DefaultLocale = "zh-CN"
	DefaultRate   = 1.1
	DefaultVolume = 1.0
)

// ErrUnavailable is returned by Speak when the backend cannot play audio.
// Callers treat it as a silent condition.
var ErrUnavailable = errors.New("speech unavailable")

// Utterance is one piece of text to vocalize.
type Utterance struct {
	Text   string  `json:"text"`
	Locale string  `json:"locale"`
	Rate   float64 `json:"rate"`
	Volume float64 `json:"volume"`
}

// NewUtterance returns text with the default voice parameters.
func NewUtterance(text string) Utterance {
	return Utterance{Text: text, Locale: DefaultLocale, Rate: DefaultRate, Volume: DefaultVolume}
}

// Speaker vocalizes utterances.
type Speaker interface {
	// Available reports whether Speak can currently produce audio.
	Available() bool
	// Speak starts playing u and returns without waiting for it to finish.
	Speak(ctx context.Context, u Utterance) error
	// Cancel stops the utterance in progress, if any.
	Cancel()
}

// Nop is a Speaker with no audio output.
type Nop struct{}

func (Nop) Available() bool                        { return false }
func (Nop) Speak(context.Context, Utterance) error { return ErrUnavailable }
func (Nop) Cancel()                                {}
