package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"ankigen/internal/anki"
	"ankigen/internal/drafts"
	"ankigen/internal/events"
	"ankigen/internal/history"
	"ankigen/internal/models"
	"ankigen/internal/orchestrator"
)

const maxMultipartMemory = 16 << 20 // 16 MB

type Server struct {
	mux       *http.ServeMux
	runs      *RunManager
	service   *orchestrator.Service
	ledger    *history.Ledger
	drafts    *drafts.Store
	anki      *anki.Client
	uploadDir string
	deck      string
}

func NewServer(
	service *orchestrator.Service,
	ledger *history.Ledger,
	draftStore *drafts.Store,
	ankiClient *anki.Client,
	uploadDir string,
	defaultDeck string,
) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		runs:      NewRunManager(),
		service:   service,
		ledger:    ledger,
		drafts:    draftStore,
		anki:      ankiClient,
		uploadDir: uploadDir,
		deck:      defaultDeck,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/runs", s.handleStartRun)
	s.mux.HandleFunc("/api/runs/", s.handleRunActions)
	s.mux.HandleFunc("/api/history", s.handleHistory)
	s.mux.HandleFunc("/api/history/clear", s.handleHistoryClear)
	s.mux.HandleFunc("/api/history/delete", s.handleHistoryBulkDelete)
	s.mux.HandleFunc("/api/history/", s.handleHistoryEntry)
	s.mux.HandleFunc("/api/drafts", s.handleListDrafts)
	s.mux.HandleFunc("/api/drafts/", s.handleDraftActions)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart payload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing pdf file")
		return
	}
	defer file.Close()

	storedPath, err := s.storeUpload(file, header)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	deck := strings.TrimSpace(r.FormValue("deck"))
	if deck == "" {
		deck = s.deck
	}
	target, _ := strconv.Atoi(r.FormValue("target"))
	density, _ := strconv.ParseFloat(r.FormValue("density"), 64)
	skipExport := r.FormValue("skipExport") == "true"

	var tags []string
	for _, tag := range strings.Split(r.FormValue("tags"), ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}

	runID := s.runs.CreateRun(header.Filename, deck)
	req := orchestrator.Request{
		PDFPath:     storedPath,
		Deck:        deck,
		TargetCards: target,
		Density:     density,
		Focus:       strings.TrimSpace(r.FormValue("focus")),
		Tags:        tags,
		SkipExport:  skipExport,
		RunID:       runID,
		Cancelled:   s.runs.Cancelled(runID),
	}

	go func() {
		s.runs.MarkRunning(runID)
		stream := events.NewStream(func(ev events.Event) {
			s.runs.Apply(runID, ev)
		})
		s.service.Run(context.Background(), req, stream)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}

func (s *Server) handleRunActions(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		job, ok := s.runs.Get(parts[0])
		if !ok {
			writeError(w, http.StatusNotFound, "unknown run")
			return
		}
		writeJSON(w, http.StatusOK, job)
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		if !s.runs.Cancel(parts[0]) {
			writeError(w, http.StatusNotFound, "unknown run")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	var (
		entries []history.Entry
		err     error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		entries, err = s.ledger.EntriesByStatus(status)
	} else {
		entries, err = s.ledger.Entries()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if err := s.ledger.ClearAll(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleHistoryBulkDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var payload struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	deleted, err := s.ledger.DeleteEntries(payload.IDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/history/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing entry id")
		return
	}
	if err := s.ledger.DeleteEntry(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	runID := r.URL.Query().Get("run")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "missing run parameter")
		return
	}
	list, err := s.drafts.ListByRun(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []drafts.Draft{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": list})
}

func (s *Server) handleDraftActions(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/drafts/"), "/")
	parts := strings.Split(path, "/")

	draftID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid draft id")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodPut:
		s.updateDraft(w, r, draftID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.deleteDraft(w, r, draftID)
	case len(parts) == 2 && parts[1] == "export" && r.Method == http.MethodPost:
		s.exportDraft(w, r, draftID)
	case len(parts) == 2 && parts[1] == "review" && r.Method == http.MethodPost:
		s.reviewDraft(w, r, draftID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) updateDraft(w http.ResponseWriter, r *http.Request, id int64) {
	var card models.Card
	if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
		writeError(w, http.StatusBadRequest, "invalid card payload")
		return
	}
	if err := s.drafts.Update(r.Context(), id, card); err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) deleteDraft(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.drafts.Delete(r.Context(), id); err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) exportDraft(w http.ResponseWriter, r *http.Request, id int64) {
	var payload struct {
		Deck string   `json:"deck"`
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	deck := payload.Deck
	if deck == "" {
		deck = s.deck
	}

	draft, err := s.drafts.Get(r.Context(), id)
	if err != nil {
		writeDraftError(w, err)
		return
	}

	result := s.anki.Export(r.Context(), draft.Card, deck, models.KindBasic, payload.Tags)
	if !result.Success {
		writeJSON(w, http.StatusBadGateway, map[string]any{"exported": false, "error": result.Error})
		return
	}
	if err := s.drafts.Delete(r.Context(), id); err != nil && !errors.Is(err, drafts.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exported": true, "noteId": result.NoteID})
}

func (s *Server) reviewDraft(w http.ResponseWriter, r *http.Request, id int64) {
	var payload struct {
		Rating string `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	rating, err := parseRating(payload.Rating)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	draft, err := s.drafts.Review(r.Context(), id, rating)
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"draft": draft})
}

func (s *Server) storeUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	name := fmt.Sprintf("%s-%s", uuid.NewString(), filepath.Base(header.Filename))
	storedPath := filepath.Join(s.uploadDir, name)

	out, err := os.Create(storedPath)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(storedPath)
		return "", fmt.Errorf("store upload: %w", err)
	}
	return storedPath, nil
}

func parseRating(value string) (fsrs.Rating, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "again":
		return fsrs.Again, nil
	case "hard":
		return fsrs.Hard, nil
	case "good":
		return fsrs.Good, nil
	case "easy":
		return fsrs.Easy, nil
	default:
		return 0, fmt.Errorf("unknown rating %q", value)
	}
}

func writeDraftError(w http.ResponseWriter, err error) {
	if errors.Is(err, drafts.ErrNotFound) {
		writeError(w, http.StatusNotFound, "draft not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
