// Package asr adapts the Vosk offline recognizer to the listener's
// incremental accept/partial/final contract.
package asr

import (
	"encoding/binary"
	"fmt"
	log "log/slog"

	vosk "github.com/alphacep/vosk-api/go"
	"github.com/tidwall/gjson"
)

// Engine wraps one recognizer over one loaded model. Frames are fed
// incrementally; partial transcripts track the utterance in progress and the
// final transcript closes it.
type Engine struct {
	model   *vosk.VoskModel
	rec     *vosk.VoskRecognizer
	scratch []byte
}

// New loads the model directory and builds a recognizer for the given
// capture rate. Vosk's own logging is silenced; everything worth hearing
// about comes back through errors or transcripts.
func New(modelPath string, sampleRate int) (*Engine, error) {
	vosk.SetLogLevel(-1)

	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load speech model %s: %w", modelPath, err)
	}
	rec, err := vosk.NewRecognizer(model, float64(sampleRate))
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("new recognizer: %w", err)
	}
	return &Engine{model: model, rec: rec}, nil
}

// Accept feeds one frame of mono samples into the recognizer.
func (e *Engine) Accept(frame []int16) {
	e.scratch = pcmBytes(frame, e.scratch)
	e.rec.AcceptWaveform(e.scratch)
}

// Partial returns the current best-guess hypothesis.
func (e *Engine) Partial() string {
	return textField(e.rec.PartialResult(), "partial")
}

// Final finalizes the utterance and implicitly resets the recognizer.
func (e *Engine) Final() string {
	return textField(e.rec.FinalResult(), "text")
}

// Reset drops the utterance in progress without producing a transcript.
func (e *Engine) Reset() {
	e.rec.Reset()
}

func (e *Engine) Close() {
	e.rec.Free()
	e.model.Free()
}

// pcmBytes serializes samples little-endian, reusing scratch when it is big
// enough.
func pcmBytes(frame []int16, scratch []byte) []byte {
	need := len(frame) * 2
	if cap(scratch) < need {
		scratch = make([]byte, need)
	}
	scratch = scratch[:need]
	for i, s := range frame {
		binary.LittleEndian.PutUint16(scratch[i*2:], uint16(s))
	}
	return scratch
}

// textField pulls the transcript out of the recognizer's JSON envelope.
// Malformed envelopes are logged and read as silence.
func textField(raw, key string) string {
	if !gjson.Valid(raw) {
		log.Warn("Recognizer returned malformed JSON", "raw", raw)
		return ""
	}
	return gjson.Get(raw, key).String()
}
