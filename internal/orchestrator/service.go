package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"ankigen/internal/ai"
	"ankigen/internal/anki"
	"ankigen/internal/drafts"
	"ankigen/internal/events"
	"ankigen/internal/generate"
	"ankigen/internal/history"
	"ankigen/internal/models"
	"ankigen/internal/pdftext"
	"ankigen/internal/session"
)

const maxStyleExamples = 5

// Service sequences one full run: validate, map concepts, generate, reflect,
// export or park drafts. Every outcome, success or failure, reaches the
// caller through the event stream; Run never returns an error.
type Service struct {
	ai       *ai.Client
	anki     *anki.Client
	sessions *session.Store
	ledger   *history.Ledger
	drafts   *drafts.Store
}

func New(
	aiClient *ai.Client,
	ankiClient *anki.Client,
	sessions *session.Store,
	ledger *history.Ledger,
	draftStore *drafts.Store,
) *Service {
	return &Service{
		ai:       aiClient,
		anki:     ankiClient,
		sessions: sessions,
		ledger:   ledger,
		drafts:   draftStore,
	}
}

// Request describes one run.
type Request struct {
	PDFPath     string
	Deck        string
	TargetCards int
	Density     float64
	Focus       string
	Tags        []string
	SkipExport  bool
	RunID       string
	Cancelled   func() bool
}

// SessionID derives a stable checkpoint key from the document path, so a
// rerun over the same file finds its previous session.
func SessionID(pdfPath string) string {
	abs, err := filepath.Abs(pdfPath)
	if err != nil {
		abs = pdfPath
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:16]
}

// Run executes the whole pipeline, emitting events throughout. The loops are
// strictly sequential; the caller is expected to drive Run off its own
// responsiveness-critical goroutine and consume events asynchronously.
func (s *Service) Run(ctx context.Context, req Request, es *events.Stream) {
	start := time.Now()

	es.StepStart("validate")
	doc, err := pdftext.Extract(req.PDFPath)
	if err != nil {
		es.StepEnd("validate", false)
		es.Error(fmt.Sprintf("read source document: %v", err))
		return
	}
	if doc.CharCount == 0 {
		es.StepEnd("validate", false)
		es.Error("source document has no extractable text")
		return
	}
	es.StepEnd("validate", true)

	es.StepStart("anki")
	if err := s.anki.Ping(ctx); err != nil {
		es.StepEnd("anki", false)
		es.Error(fmt.Sprintf("flashcard application unreachable: %v", err))
		return
	}
	es.StepEnd("anki", true)

	sessionID := SessionID(req.PDFPath)
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	entryID, err := s.ledger.AddEntry(doc.Name, req.Deck, history.StatusDraft, sessionID)
	if err != nil {
		// The ledger is a convenience index; a run works without it.
		log.Printf("history entry not recorded: %v", err)
	}

	examples, err := s.anki.SampleExamples(ctx, req.Deck, maxStyleExamples)
	if err != nil {
		es.Warning(fmt.Sprintf("could not sample style examples from deck %q: %v", req.Deck, err))
		examples = nil
	}

	snap := s.sessions.Load(sessionID)
	fresh := snap == nil || snap.PDFPath != req.PDFPath || len(snap.History) == 0

	var (
		sess     *ai.Session
		cmap     *models.ConceptMap
		restored []models.Card
	)
	if fresh {
		sess = ai.NewSession(s.ai, doc)
	} else {
		sess = ai.Restore(s.ai, snap.History)
		cmap = snap.ConceptMap
		restored = snap.Cards
		es.Info(fmt.Sprintf("resuming previous session with %d cards", len(restored)))
	}

	if cmap == nil {
		es.StepStart("concept_map")
		resp, err := sess.BuildConceptMap(ctx)
		if err != nil {
			es.StepEnd("concept_map", false)
			es.Error(fmt.Sprintf("build concept map: %v", err))
			s.updateEntry(entryID, history.StatusError, 0)
			return
		}
		cmap = conceptMapFromResponse(resp, doc)
		es.StepEnd("concept_map", true)
	}
	if cmap.SlideSetName == "" {
		cmap.SlideSetName = SlideSetName(doc.Name)
	}
	es.Info(fmt.Sprintf("slide set %q: %d concepts, %d objectives", cmap.SlideSetName, len(cmap.Concepts), len(cmap.Objectives)))

	cardCap, batch, density, docKind := Budget(doc, req.TargetCards, req.Density)
	es.Info(fmt.Sprintf("planned up to %d cards (%s, %d pages, batches of %d)", cardCap, docKind, doc.PageCount, batch))

	run := generate.NewRun(restored)
	checkpoint := func(cards []models.Card) {
		sess.CompactHistory(cards)
		snapshot := &session.Snapshot{
			PDFPath:      req.PDFPath,
			Deck:         req.Deck,
			SlideSetName: cmap.SlideSetName,
			Model:        s.ai.Model(),
			Tags:         req.Tags,
			RunID:        runID,
			EntryID:      entryID,
			Cards:        cards,
			ConceptMap:   cmap,
			History:      sess.History(),
		}
		if err := s.sessions.Save(sessionID, snapshot); err != nil {
			// Recoverable: the next productive round checkpoints again.
			log.Printf("checkpoint not persisted: %v", err)
		}
		s.updateEntry(entryID, "", len(cards))
	}

	cfg := generate.Config{
		Cap:           cardCap,
		BatchSize:     batch,
		Focus:         req.Focus,
		TargetDensity: density,
		TotalPages:    doc.PageCount,
		FreshRun:      fresh,
		Examples:      examples,
		Cancelled:     req.Cancelled,
		Checkpoint:    checkpoint,
	}

	es.StepStart("generate")
	outcome := generate.Generate(ctx, sess, run, cfg, es)
	if outcome == generate.OutcomeStopped {
		// Session is kept so the run can resume later.
		s.updateEntry(entryID, history.StatusCancelled, len(run.Cards))
		return
	}
	es.StepEnd("generate", outcome != generate.OutcomeError)

	if outcome != generate.OutcomeError {
		es.StepStart("reflect")
		reflected := generate.Reflect(ctx, sess, run, cfg, es)
		if reflected == generate.OutcomeStopped {
			s.updateEntry(entryID, history.StatusCancelled, len(run.Cards))
			return
		}
		es.StepEnd("reflect", reflected != generate.OutcomeError)
	}

	exported, failed := 0, 0
	status := history.StatusCompleted
	if req.SkipExport {
		es.StepStart("drafts")
		saved, err := s.drafts.SaveAll(ctx, runID, run.Cards)
		if err != nil {
			es.Warning(fmt.Sprintf("store drafts: %v", err))
		}
		es.StepEnd("drafts", err == nil)
		es.Info(fmt.Sprintf("parked %d cards as drafts", saved))
		status = history.StatusDraft
	} else {
		exported, failed = s.exportCards(ctx, req, run.Cards, cmap.SlideSetName, es)
	}

	s.updateEntry(entryID, status, len(run.Cards))
	s.sessions.Clear(sessionID)

	es.Done(map[string]any{
		"runId":          runID,
		"cards":          len(run.Cards),
		"exported":       exported,
		"failed":         failed,
		"elapsedSeconds": int(time.Since(start).Seconds()),
	})
}

// exportCards pushes every card through the note-creation endpoint. Failures
// are isolated per card: one rejected note never aborts its successors.
func (s *Service) exportCards(ctx context.Context, req Request, cards []models.Card, slideSetName string, es *events.Stream) (exported, failed int) {
	es.StepStart("export")
	es.ProgressStart("Exporting cards", len(cards))

	if err := s.anki.CreateDeck(ctx, req.Deck); err != nil {
		es.Warning(fmt.Sprintf("ensure deck %q: %v", req.Deck, err))
	}

	extraTags := append(append([]string(nil), req.Tags...), deckTag(slideSetName))
	for i, card := range cards {
		res := s.anki.Export(ctx, card, req.Deck, models.KindBasic, extraTags)
		if res.Success {
			exported++
		} else {
			failed++
			es.Warning(fmt.Sprintf("export card %d/%d: %s", i+1, len(cards), res.Error))
		}
		es.ProgressUpdate(i + 1)
	}

	es.StepEnd("export", failed == 0)
	return exported, failed
}

func (s *Service) updateEntry(entryID, status string, cardCount int) {
	if entryID == "" {
		return
	}
	if err := s.ledger.UpdateEntry(entryID, status, cardCount); err != nil {
		log.Printf("history entry %s not updated: %v", entryID, err)
	}
}

func conceptMapFromResponse(resp *ai.ConceptMapResponse, doc *models.SourceDocument) *models.ConceptMap {
	cmap := &models.ConceptMap{
		Objectives:   resp.Objectives,
		Language:     resp.Language,
		SlideSetName: strings.TrimSpace(resp.SlideSetName),
		PageCount:    doc.PageCount,
		CharCount:    doc.CharCount,
	}
	for _, c := range resp.Concepts {
		cmap.Concepts = append(cmap.Concepts, models.Concept{
			ID:         c.ID,
			Name:       c.Name,
			Definition: c.Definition,
			Category:   c.Category,
			Importance: c.Importance,
			Difficulty: c.Difficulty,
		})
	}
	for _, r := range resp.Relations {
		cmap.Relations = append(cmap.Relations, models.Relation{
			SourceID: r.SourceID,
			TargetID: r.TargetID,
			Type:     r.Type,
			Page:     r.Page,
		})
	}
	return cmap
}

func deckTag(slideSetName string) string {
	slug := strings.ToLower(strings.Join(strings.Fields(slideSetName), "-"))
	if slug == "" {
		return "ankigen"
	}
	return "ankigen::" + slug
}
