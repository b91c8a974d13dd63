package betting

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/betarena/market-engine/internal/model"
)

// Routes mounts the betting API on r. The caller chooses the prefix.
func (s *Service) Routes(r chi.Router) {
	// Users.
	r.Get("/users", s.HandleListUsers)
	r.Post("/users", s.HandleCreateUser)
	r.Get("/users/{userID}", s.HandleGetUser)
	r.Get("/users/{userID}/balance", s.HandleGetBalance)
	r.Get("/users/{userID}/history", s.HandleUserHistory)
	r.Get("/users/{userID}/statistics", s.HandleUserStatistics)
	r.Get("/users/{userID}/active-positions", s.HandleActivePositions)
	r.Get("/users/{userID}/ranking", s.HandleUserRanking)

	// Contracts.
	r.Get("/contracts", s.HandleListContracts)
	r.Post("/contracts", s.HandleCreateContract)
	r.Get("/contracts/{contractID}", s.HandleGetContract)
	r.Get("/contracts/{contractID}/price-history", s.HandlePriceHistory)
	r.Get("/contracts/{contractID}/positions", s.HandlePositions)
	r.Post("/contracts/{contractID}/bets", s.HandlePlaceBet)
	r.Post("/contracts/{contractID}/resolve", s.HandleResolve)

	r.Get("/leaderboard", s.HandleLeaderboard)
	r.Get("/leaderboard/profit", s.HandleProfitLeaderboard)
}

// HandleListUsers handles GET /users
func (s *Service) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleCreateUser handles POST /users
func (s *Service) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	u, err := s.CreateUser(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// HandleGetUser handles GET /users/{userID}
func (s *Service) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleGetBalance handles GET /users/{userID}/balance
func (s *Service) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	u, err := s.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"prediction_coins": u.PredictionCoins,
		"fantasy_coins":    u.FantasyCoins,
	})
}

// HandleUserHistory handles GET /users/{userID}/history
func (s *Service) HandleUserHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.UserHistory(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// HandleUserStatistics handles GET /users/{userID}/statistics
func (s *Service) HandleUserStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.UserStatistics(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleActivePositions handles GET /users/{userID}/active-positions
func (s *Service) HandleActivePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.ActivePositions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// HandleUserRanking handles GET /users/{userID}/ranking
func (s *Service) HandleUserRanking(w http.ResponseWriter, r *http.Request) {
	rk, err := s.UserRanking(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rk)
}

// HandleListContracts handles GET /contracts
func (s *Service) HandleListContracts(w http.ResponseWriter, r *http.Request) {
	views, err := s.ListContracts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// HandleCreateContract handles POST /contracts
func (s *Service) HandleCreateContract(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	c, err := s.CreateContract(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleGetContract handles GET /contracts/{contractID}
func (s *Service) HandleGetContract(w http.ResponseWriter, r *http.Request) {
	v, err := s.ContractState(r.Context(), chi.URLParam(r, "contractID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandlePriceHistory handles GET /contracts/{contractID}/price-history
func (s *Service) HandlePriceHistory(w http.ResponseWriter, r *http.Request) {
	points, err := s.PriceHistory(r.Context(), chi.URLParam(r, "contractID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if points == nil {
		points = []model.PricePoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

// HandlePositions handles GET /contracts/{contractID}/positions?user_id=
func (s *Service) HandlePositions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	bets, err := s.UserPositions(r.Context(), chi.URLParam(r, "contractID"), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bets)
}

// HandlePlaceBet handles POST /contracts/{contractID}/bets
func (s *Service) HandlePlaceBet(w http.ResponseWriter, r *http.Request) {
	var req PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res, err := s.PlaceBet(r.Context(), chi.URLParam(r, "contractID"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleResolve handles POST /contracts/{contractID}/resolve
func (s *Service) HandleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	summary, err := s.ResolveContract(r.Context(), chi.URLParam(r, "contractID"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleLeaderboard handles GET /leaderboard?timeframe=&limit=
func (s *Service) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	tf, err := ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	entries, err := s.Leaderboard(r.Context(), tf, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleProfitLeaderboard handles GET /leaderboard/profit?limit=
func (s *Service) HandleProfitLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	entries, err := s.ProfitLeaderboard(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// limitParam reads the optional limit query value. On a bad value it
// writes a 400 and returns false.
func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return DefaultLeaderboardLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeError(w, "limit must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrInsufficientFunds):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidState),
		errors.Is(err, model.ErrAlreadyResolved),
		errors.Is(err, model.ErrDuplicate),
		errors.Is(err, model.ErrStaleContract):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status. Internal errors are
// logged and not echoed to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
