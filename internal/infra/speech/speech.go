// Package speech is the delivery edge for voiced queue items. The stock
// synthesizer writes lines to a writer (stdout in the daemon); overlay
// or TTS integrations replace it behind the same interface.
package speech

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/glimmer-live/glimmer/internal/domain"
)

// Synthesizer renders speech payloads as text lines.
type Synthesizer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewSynthesizer creates a synthesizer writing to out.
func NewSynthesizer(out io.Writer) *Synthesizer {
	return &Synthesizer{out: out}
}

// Prime fires the pre-roll cue for a claimed item.
func (s *Synthesizer) Prime(_ context.Context, p domain.SpeechPayload) error {
	log.Printf("[speech] priming line for %s", p.Subject)
	return nil
}

// Deliver writes the finished line.
func (s *Synthesizer) Deliver(_ context.Context, p domain.SpeechPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.out, p.Line())
	return err
}
