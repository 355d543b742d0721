package events

import "time"

// Type enumerates the discrete event kinds a run emits. Consumers must treat
// Done, Cancelled and Error as terminal.
type Type string

const (
	TypeStepStart      Type = "step_start"
	TypeStepEnd        Type = "step_end"
	TypeInfo           Type = "info"
	TypeWarning        Type = "warning"
	TypeError          Type = "error"
	TypeProgressStart  Type = "progress_start"
	TypeProgressUpdate Type = "progress_update"
	TypeCard           Type = "card"
	TypeDone           Type = "done"
	TypeCancelled      Type = "cancelled"
)

// Event is one entry of the append-only stream a run produces.
type Event struct {
	Type      Type           `json:"type"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Terminal reports whether ev ends the stream.
func (ev Event) Terminal() bool {
	return ev.Type == TypeDone || ev.Type == TypeCancelled || ev.Type == TypeError
}

// Stream delivers events to a single consumer callback. A nil *Stream (or a
// Stream around a nil func) discards everything, so callers never have to
// guard their emits.
type Stream struct {
	fn func(Event)
}

// NewStream wraps fn into a Stream.
func NewStream(fn func(Event)) *Stream {
	return &Stream{fn: fn}
}

func (s *Stream) emit(t Type, msg string, data map[string]any) {
	if s == nil || s.fn == nil {
		return
	}
	s.fn(Event{Type: t, Message: msg, Data: data, Timestamp: time.Now().UTC()})
}

func (s *Stream) StepStart(step string) {
	s.emit(TypeStepStart, step, map[string]any{"step": step})
}

func (s *Stream) StepEnd(step string, ok bool) {
	s.emit(TypeStepEnd, step, map[string]any{"step": step, "success": ok})
}

func (s *Stream) Info(msg string) {
	s.emit(TypeInfo, msg, nil)
}

func (s *Stream) Warning(msg string) {
	s.emit(TypeWarning, msg, nil)
}

func (s *Stream) Error(msg string) {
	s.emit(TypeError, msg, nil)
}

func (s *Stream) ProgressStart(label string, total int) {
	s.emit(TypeProgressStart, label, map[string]any{"label": label, "total": total})
}

func (s *Stream) ProgressUpdate(current int) {
	s.emit(TypeProgressUpdate, "", map[string]any{"current": current})
}

// Card reports one accepted card. The payload travels as event data so poll
// consumers can render it without another round trip.
func (s *Stream) Card(payload any) {
	s.emit(TypeCard, "", map[string]any{"card": payload})
}

func (s *Stream) Done(counts map[string]any) {
	s.emit(TypeDone, "run complete", counts)
}

func (s *Stream) Cancelled() {
	s.emit(TypeCancelled, "run cancelled", nil)
}
