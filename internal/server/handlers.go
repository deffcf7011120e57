package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/raphaelgruber/chartbracket/internal/bracket"
	"github.com/raphaelgruber/chartbracket/internal/cache"
	"github.com/raphaelgruber/chartbracket/internal/coingecko"
	"github.com/raphaelgruber/chartbracket/internal/collector"
	"github.com/raphaelgruber/chartbracket/internal/db"
	"github.com/raphaelgruber/chartbracket/internal/dexscreener"
	"github.com/raphaelgruber/chartbracket/internal/metrics"
	"github.com/raphaelgruber/chartbracket/internal/models"
	"github.com/raphaelgruber/chartbracket/internal/service"
	"github.com/raphaelgruber/chartbracket/internal/source"
)

// maxBodyBytes bounds request bodies; a session of trending charts is well below it.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Error   string                `json:"error"`
	Code    string                `json:"code"`
	Summary *models.SessionResult `json:"summary,omitempty"`
}

// ChartView is a chart with its embed URL.
type ChartView struct {
	models.Chart
	EmbedURL string `json:"embed_url"`
}

// SessionResponse is a session view with embed URLs on its charts.
type SessionResponse struct {
	service.SessionView
	Charts []ChartView `json:"charts"`
}

func (s *Server) chartViews(charts []models.Chart) []ChartView {
	out := make([]ChartView, len(charts))
	for i, ch := range charts {
		out[i] = ChartView{Chart: ch, EmbedURL: dexscreener.ChartURL(ch, s.interval)}
	}
	return out
}

func (s *Server) sessionResponse(v service.SessionView) SessionResponse {
	return SessionResponse{SessionView: v, Charts: s.chartViews(v.Charts)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

var errBadRequest = errors.New("bad request")

// statusFor maps domain errors to HTTP status codes and stable error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, models.ErrUnknownVerdict), errors.Is(err, cache.ErrInvalidID),
		errors.Is(err, service.ErrInvalidSessionID):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrInvalidChart):
		return http.StatusUnprocessableEntity, "invalid_chart"
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, cache.ErrMiss):
		return http.StatusNotFound, "metadata_not_found"
	case errors.Is(err, bracket.ErrInvalidResult):
		return http.StatusUnprocessableEntity, "invalid_result"
	case errors.Is(err, collector.ErrIndexOutOfRange):
		return http.StatusUnprocessableEntity, "index_out_of_range"
	case errors.Is(err, service.ErrNoCharts):
		return http.StatusUnprocessableEntity, "no_charts"
	case errors.Is(err, service.ErrSessionExists):
		return http.StatusConflict, "session_exists"
	case errors.Is(err, bracket.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, bracket.ErrStaleMatchup):
		return http.StatusConflict, "stale_matchup"
	case errors.Is(err, bracket.ErrInsufficientSeed):
		return http.StatusConflict, "insufficient_seed"
	case errors.Is(err, collector.ErrOutOfOrder):
		return http.StatusConflict, "out_of_order"
	case errors.Is(err, collector.ErrAlreadyRecorded):
		return http.StatusConflict, "already_recorded"
	case errors.Is(err, collector.ErrFinished):
		return http.StatusConflict, "rating_finished"
	case errors.Is(err, collector.ErrNotFinished):
		return http.StatusConflict, "rating_not_finished"
	case errors.Is(err, service.ErrNoTournament):
		return http.StatusConflict, "tournament_not_started"
	case errors.Is(err, service.ErrNoSource), errors.Is(err, source.ErrUnavailable):
		return http.StatusServiceUnavailable, "source_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request error", "request_id", RequestID(r.Context()), "path", r.URL.Path, "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "chartbracket API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Warn("store health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats reports per-operation timings for upstream calls and the store.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusOK, metrics.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleGenerateSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"session_id": service.NewSessionID()})
}

func (s *Server) handleTrendingCharts(w http.ResponseWriter, r *http.Request) {
	charts, err := s.manager.Trending(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"charts":  s.chartViews(charts),
		"total":   len(charts),
	})
}

func (s *Server) handleTrendingTickers(w http.ResponseWriter, r *http.Request) {
	tickers, metadataID, err := s.manager.TrendingTickers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tickers":     tickers,
		"metadata_id": metadataID,
	})
}

type storeMetadataRequest struct {
	SessionID string         `json:"session_id"`
	Charts    []models.Chart `json:"charts"`
}

func (s *Server) handleStoreMetadata(w http.ResponseWriter, r *http.Request) {
	var req storeMetadataRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.manager.StoreMetadata(r.Context(), req.SessionID, req.Charts); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": req.SessionID, "count": len(req.Charts)})
}

func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	charts, err := s.manager.LoadMetadata(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": id, "charts": charts})
}

func (s *Server) handleTopTickers(w http.ResponseWriter, r *http.Request) {
	if s.tickers == nil {
		s.writeError(w, r, service.ErrNoSource)
		return
	}
	limit := coingecko.MaxTickers
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: limit %q", errBadRequest, v))
			return
		}
		limit = n
	}
	tickers, err := s.tickers.TopTickers(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickers": tickers, "total": len(tickers)})
}

type createSessionRequest struct {
	SessionID  string         `json:"session_id"`
	Charts     []models.Chart `json:"charts"`
	Tickers    []string       `json:"tickers"`
	MetadataID string         `json:"metadata_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	var (
		view service.SessionView
		err  error
	)
	if len(req.Tickers) > 0 {
		view, err = s.manager.NewSessionFromTickers(r.Context(), req.SessionID, req.Tickers, req.MetadataID)
	} else {
		view, err = s.manager.NewSessionWithID(r.Context(), req.SessionID, req.Charts)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.sessionResponse(view))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	views := s.manager.ListSessions()
	out := make([]SessionResponse, len(views))
	for i, v := range views {
		out[i] = s.sessionResponse(v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out, "total": len(out)})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.manager.Session(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionResponse(view))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type recordChoiceRequest struct {
	SessionID  string `json:"session_id"`
	ChartIndex *int   `json:"chart_index"`
	Choice     string `json:"choice"`
}

func (s *Server) handleRecordChoice(w http.ResponseWriter, r *http.Request) {
	var req recordChoiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.SessionID == "" || req.ChartIndex == nil {
		s.writeError(w, r, fmt.Errorf("%w: session_id and chart_index are required", errBadRequest))
		return
	}
	verdict, err := models.ParseVerdict(req.Choice)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	progress, err := s.manager.RecordChoice(r.Context(), req.SessionID, *req.ChartIndex, verdict)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "progress": progress})
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	progress, err := s.manager.Finish(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "progress": progress})
}

func (s *Server) handleSessionResults(w http.ResponseWriter, r *http.Request) {
	res, err := s.manager.Results(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStartTournament(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	view, err := s.manager.StartTournament(id)
	if errors.Is(err, bracket.ErrInsufficientSeed) {
		body := errorBody{Error: err.Error(), Code: "insufficient_seed"}
		if summary, serr := s.manager.Summary(id); serr == nil {
			body.Summary = &summary
		}
		writeJSON(w, http.StatusConflict, body)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleTournament(w http.ResponseWriter, r *http.Request) {
	view, err := s.manager.Tournament(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type reportResultRequest struct {
	Round    int    `json:"round"`
	WinnerID string `json:"winner_id"`
}

func (s *Server) handleReportResult(w http.ResponseWriter, r *http.Request) {
	var req reportResultRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.WinnerID == "" {
		s.writeError(w, r, fmt.Errorf("%w: winner_id is required", errBadRequest))
		return
	}
	view, err := s.manager.ReportResult(r.Context(), mux.Vars(r)["id"], req.Round, req.WinnerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
