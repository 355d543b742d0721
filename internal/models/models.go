package models

import "time"

// Kind discriminates the two card shapes the generator can produce.
type Kind string

const (
	KindBasic Kind = "basic"
	KindCloze Kind = "cloze"
)

// Media is an attachment referenced from a card field, carried inline so the
// exporter can upload it before creating the note.
type Media struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

// Card is a flashcard candidate produced by a generation or reflection round.
// It is a tagged union: Front/Back are meaningful for KindBasic, Text for
// KindCloze. Once accepted into a run's card list it is never mutated by the
// core; edits happen downstream during draft review.
type Card struct {
	Kind  Kind   `json:"kind"`
	Front string `json:"front,omitempty"`
	Back  string `json:"back,omitempty"`
	Text  string `json:"text,omitempty"`

	Tags  []string `json:"tags,omitempty"`
	Media []Media  `json:"media,omitempty"`

	SlideTopic  string `json:"slideTopic,omitempty"`
	SlideNumber int    `json:"slideNumber,omitempty"`
	Rationale   string `json:"rationale,omitempty"`
}

// PrimaryText returns the content field deduplication keys on: Text for
// cloze cards, Front otherwise.
func (c Card) PrimaryText() string {
	if c.Kind == KindCloze {
		return c.Text
	}
	return c.Front
}

// Page is one extracted PDF page.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// SourceDocument is the parsed form of an uploaded lecture PDF.
type SourceDocument struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	Pages     []Page `json:"pages"`
	PageCount int    `json:"pageCount"`
	CharCount int    `json:"charCount"`
}

// Concept is one node of the concept map.
type Concept struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Definition string `json:"definition"`
	Category   string `json:"category,omitempty"`
	Importance string `json:"importance,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

// Relation links two concepts.
type Relation struct {
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	Page     int    `json:"page,omitempty"`
}

// ConceptMap is the one-shot structured summary of the source document.
// Built (or restored) once per run and read-only afterwards.
type ConceptMap struct {
	Objectives []string   `json:"objectives,omitempty"`
	Concepts   []Concept  `json:"concepts,omitempty"`
	Relations  []Relation `json:"relations,omitempty"`

	Language     string `json:"language,omitempty"`
	SlideSetName string `json:"slideSetName,omitempty"`
	PageCount    int    `json:"pageCount,omitempty"`
	CharCount    int    `json:"charCount,omitempty"`
}

// ExportResult reports one note-creation attempt.
type ExportResult struct {
	Success bool      `json:"success"`
	NoteID  int64     `json:"noteId,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}
