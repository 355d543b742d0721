package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"ankigen/internal/ai"
	"ankigen/internal/anki"
	"ankigen/internal/api"
	"ankigen/internal/config"
	"ankigen/internal/db"
	"ankigen/internal/drafts"
	"ankigen/internal/history"
	"ankigen/internal/orchestrator"
	"ankigen/internal/session"
)

func main() {
	cfg := config.Load()

	conn, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer conn.Close()

	sessionStore, err := session.NewStore(cfg.SessionDir)
	if err != nil {
		log.Fatalf("init session store: %v", err)
	}

	aiClient := ai.NewClient(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIEndpoint)
	ankiClient := anki.NewClient(cfg.AnkiConnectURL)
	ledger, err := history.NewLedger(cfg.HistoryFile)
	if err != nil {
		log.Fatalf("init history ledger: %v", err)
	}
	draftStore := drafts.NewStore(conn)

	service := orchestrator.New(aiClient, ankiClient, sessionStore, ledger, draftStore)
	server := api.NewServer(service, ledger, draftStore, ankiClient, cfg.UploadDir, cfg.DefaultDeck)

	mux := http.NewServeMux()
	mux.Handle("/api", server.Handler())
	mux.Handle("/api/", server.Handler())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("listening on :%s", port)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}
