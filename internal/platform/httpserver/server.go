package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	votingengine "voteverse/contexts/live-contest/voting-engine"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "voteverse/internal/platform/httpserver/docs"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	addr   string
	voting votingengine.Module
	stream http.Handler
}

func New(
	voting votingengine.Module,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		addr:   addr,
		voting: voting,
	}
	if voting.Stream != nil {
		s.stream = voting.Stream
	}
	s.registerRoutes()
	return s
}

// Start serves until ctx ends, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
	)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /api/voting/v1/identities", s.handleRegisterIdentity)

	s.mux.HandleFunc("GET /api/voting/v1/rounds/current", s.handleCurrentRound)
	s.mux.HandleFunc("GET /api/voting/v1/rounds", s.handleListRounds)
	s.mux.HandleFunc("POST /api/voting/v1/rounds/{round}/judge-votes", s.handleSubmitJudgeVote)
	s.mux.HandleFunc("POST /api/voting/v1/rounds/{round}/audience-votes", s.handleSubmitAudienceVote)
	s.mux.HandleFunc("GET /api/voting/v1/rounds/{round}/votes", s.handleRoundVotes)
	s.mux.HandleFunc("GET /api/voting/v1/rounds/{round}/audience-results", s.handleAudienceResults)
	s.mux.HandleFunc("GET /api/voting/v1/rounds/{round}/clashes", s.handleRoundClashes)

	s.mux.HandleFunc("GET /api/voting/v1/participants", s.handleListParticipants)
	s.mux.HandleFunc("GET /api/voting/v1/participants/{participant_id}/votes", s.handleParticipantVotes)

	s.mux.HandleFunc("GET /api/voting/v1/leaderboard", s.handleLeaderboard)
	s.mux.HandleFunc("GET /api/voting/v1/leaderboard/history", s.handleListLeaderboardHistory)
	s.mux.HandleFunc("GET /api/voting/v1/leaderboard/history/{round}", s.handleLeaderboardHistory)
	if s.stream != nil {
		s.mux.Handle("GET /api/voting/v1/leaderboard/stream", s.stream)
	}

	s.mux.HandleFunc("POST /api/voting/v1/admin/lock", s.handleLockVoting)
	s.mux.HandleFunc("POST /api/voting/v1/admin/unlock", s.handleUnlockVoting)
	s.mux.HandleFunc("POST /api/voting/v1/admin/advance", s.handleForceAdvance)
	s.mux.HandleFunc("POST /api/voting/v1/admin/timer", s.handleStartTimer)
	s.mux.HandleFunc("POST /api/voting/v1/admin/audience/open", s.handleOpenAudience)
	s.mux.HandleFunc("POST /api/voting/v1/admin/audience/close", s.handleCloseAudience)
	s.mux.HandleFunc("POST /api/voting/v1/admin/participants", s.handleRegisterParticipant)
	s.mux.HandleFunc("PATCH /api/voting/v1/admin/voters/{voter_id}", s.handleEditVoter)
	s.mux.HandleFunc("DELETE /api/voting/v1/admin/voters/{voter_id}", s.handleRemoveVoter)
	s.mux.HandleFunc("POST /api/voting/v1/admin/voters/{voter_id}/deactivate", s.handleDeactivateVoter)
	s.mux.HandleFunc("GET /api/voting/v1/admin/analytics", s.handleAnalytics)
	s.mux.HandleFunc("GET /api/voting/v1/admin/activity", s.handleActivity)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
