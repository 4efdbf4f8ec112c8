package kotoba

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Handler builds the HTTP routing table. Exposed so handler tests can
// exercise the full router without binding a port.
func (a *App) Handler() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", a.handleHealth).Methods("GET")

	// Diary entries
	api.HandleFunc("/upload", a.handleUpload).Methods("POST")
	api.HandleFunc("/create", a.handleCreateNote).Methods("POST")
	api.HandleFunc("/delete", a.handleDeleteNote).Methods("POST")
	api.HandleFunc("/note_list/{user_id}", a.handleNoteList).Methods("GET")
	api.HandleFunc("/notes/{user_id}/{note_id}", a.handleNoteContent).Methods("GET")
	api.HandleFunc("/notes/{user_id}/{note_id}/hashtags", a.handleGetHashtags).Methods("GET")

	// AI features
	api.HandleFunc("/summary", a.handleSummary).Methods("POST")
	api.HandleFunc("/gen_hashtag", a.handleGenHashtag).Methods("POST")
	api.HandleFunc("/audio/transcribe", a.handleTranscribe).Methods("POST")
	api.HandleFunc("/notify/{user_id}", a.handleNotify).Methods("GET")
	api.HandleFunc("/link/{user_id}/{note_id}", a.handleCalendarLink).Methods("GET")

	// Search
	api.HandleFunc("/search/{user_id}", a.handleSearch).Methods("GET")

	// Accounts
	api.HandleFunc("/register", a.handleRegister).Methods("POST")
	api.HandleFunc("/login", a.handleLogin).Methods("POST")

	// Health check route (outside of /api prefix)
	router.HandleFunc("/health", a.handleHealth).Methods("GET")

	return router
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails. On cancellation, active requests get up to 5 seconds to
// complete.
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	a.log.Info().Str("addr", addr).Msg("starting kotoba server")

	server := &http.Server{
		Addr:    addr,
		Handler: a.Handler(),
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
