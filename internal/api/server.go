package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hakimelghazi/liquidation-core/internal/engine"
	"github.com/hakimelghazi/liquidation-core/internal/logger"
	"github.com/hakimelghazi/liquidation-core/internal/store"
)

// Service is the liquidation session the handlers drive. *engine.Engine implements it.
type Service interface {
	PlaceBid(ctx context.Context, bidder string, amount uint64, discount uint8) (engine.Bid, error)
	CancelBid(ctx context.Context, sequence uint64) (engine.Bid, error)
	RunLiquidation(ctx context.Context) (engine.Round, error)
	ResetLiquidation(ctx context.Context, account string, amount uint64) (engine.Liquidation, error)
	CancelLiquidation(ctx context.Context) (engine.Liquidation, error)
	Snapshot(ctx context.Context) (engine.Snapshot, error)
}

// FillLister reads the fill journal. *store.RoundStore implements it.
type FillLister interface {
	ListFills(ctx context.Context, roundID string) ([]store.FillRecord, error)
}

type placeBidRequest struct {
	Bidder   string `json:"bidder"`
	Amount   int64  `json:"amount"`
	Discount int    `json:"discount"`
}

type resetLiquidationRequest struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

type bidResponse struct {
	engine.Bid
	PercentFilled string `json:"percent_filled"`
}

type discountsResponse struct {
	Totals  map[uint8]uint64 `json:"totals"`
	Empties map[uint8]uint64 `json:"empties"`
}

type fillResponse struct {
	engine.Fill
	Haircut string `json:"haircut"`
}

// roundResponse shadows EmptiedTiers so it encodes as numbers, not base64.
type roundResponse struct {
	engine.Round
	Fills        []fillResponse `json:"fills"`
	EmptiedTiers []int          `json:"emptied_tiers"`
	RequestID    string         `json:"request_id"`
}

type server struct {
	svc   Service
	fills FillLister // nil without a database
	log   *logger.Entry
}

// NewRouter builds the HTTP API. fills may be nil.
func NewRouter(svc Service, fills FillLister, log *logger.Log, timeout time.Duration) http.Handler {
	s := &server{svc: svc, fills: fills, log: log.WithComponent("api")}

	r := chi.NewRouter()

	// Hygiene stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log.Logger, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Post("/bids", s.placeBid)
	r.Get("/bids", s.listBids)
	r.Delete("/bids/{sequence}", s.cancelBid)
	r.Get("/discounts", s.discounts)

	r.Get("/liquidation", s.getLiquidation)
	r.Put("/liquidation", s.resetLiquidation)
	r.Delete("/liquidation", s.cancelLiquidation)
	r.Post("/liquidation/run", s.runLiquidation)

	r.Get("/rounds/{id}/fills", s.listFills)

	return r
}

func writeProblem(w http.ResponseWriter, r *http.Request, code int, title, detail string) {
	reqID := middleware.GetReqID(r.Context())
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"title":      title,
		"status":     code,
		"detail":     detail,
		"instance":   r.URL.Path,
		"request_id": reqID,
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", middleware.GetReqID(r.Context()))
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// engineProblem maps engine errors to HTTP problems.
func (s *server) engineProblem(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidBid),
		errors.Is(err, engine.ErrInvalidDiscount),
		errors.Is(err, engine.ErrZeroAmount),
		errors.Is(err, engine.ErrDuplicateSequence):
		writeProblem(w, r, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, engine.ErrBidNotFound):
		writeProblem(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, engine.ErrLiquidationCancelled):
		writeProblem(w, r, http.StatusConflict, "liquidation_cancelled", err.Error())
	default:
		s.log.WithError(err).WithFields(logger.Fields{"path": r.URL.Path}).Error("engine call failed")
		writeProblem(w, r, http.StatusInternalServerError, "engine_error", err.Error())
	}
}

func toBidResponse(b engine.Bid) bidResponse {
	return bidResponse{Bid: b, PercentFilled: b.PercentFilled().StringFixed(2)}
}

// POST /bids
func (s *server) placeBid(w http.ResponseWriter, r *http.Request) {
	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Amount <= 0 {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", "amount must be positive")
		return
	}
	if req.Discount < int(engine.MinDiscount) || req.Discount > int(engine.MaxDiscount) {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", "discount must be between 1 and 100")
		return
	}

	bid, err := s.svc.PlaceBid(r.Context(), req.Bidder, uint64(req.Amount), uint8(req.Discount))
	if err != nil {
		s.engineProblem(w, r, err)
		return
	}

	w.Header().Set("Location", "/bids/"+strconv.FormatUint(bid.Sequence, 10))
	writeJSON(w, r, http.StatusCreated, toBidResponse(bid))
}

// GET /bids
func (s *server) listBids(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(r.Context())
	if err != nil {
		s.engineProblem(w, r, err)
		return
	}
	out := make([]bidResponse, 0, len(snap.Bids))
	for _, b := range snap.Bids {
		out = append(out, toBidResponse(b))
	}
	writeJSON(w, r, http.StatusOK, out)
}

// DELETE /bids/{sequence}
func (s *server) cancelBid(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseUint(chi.URLParam(r, "sequence"), 10, 64)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", "invalid sequence")
		return
	}
	if _, err := s.svc.CancelBid(r.Context(), seq); err != nil {
		s.engineProblem(w, r, err)
		return
	}
	w.Header().Set("X-Request-ID", middleware.GetReqID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// GET /discounts
func (s *server) discounts(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(r.Context())
	if err != nil {
		s.engineProblem(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, discountsResponse{Totals: snap.Totals, Empties: snap.Empties})
}

// GET /liquidation
func (s *server) getLiquidation(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(r.Context())
	if err != nil {
		s.engineProblem(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap.Liquidation)
}

// PUT /liquidation
func (s *server) resetLiquidation(w http.ResponseWriter, r *http.Request) {
	var req resetLiquidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	req.Account = strings.TrimSpace(req.Account)
	if req.Account == "" {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", "account is required")
		return
	}
	if req.Amount < 0 {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", "amount must not be negative")
		return
	}

	liq, err := s.svc.ResetLiquidation(r.Context(), req.Account, uint64(req.Amount))
	if err != nil {
		s.engineProblem(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, liq)
}

// DELETE /liquidation
func (s *server) cancelLiquidation(w http.ResponseWriter, r *http.Request) {
	liq, err := s.svc.CancelLiquidation(r.Context())
	if err != nil {
		s.engineProblem(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, liq)
}

// POST /liquidation/run
func (s *server) runLiquidation(w http.ResponseWriter, r *http.Request) {
	round, err := s.svc.RunLiquidation(r.Context())
	if err != nil {
		s.engineProblem(w, r, err)
		return
	}

	fills := make([]fillResponse, 0, len(round.Fills))
	for _, f := range round.Fills {
		fills = append(fills, fillResponse{Fill: f, Haircut: f.Haircut().String()})
	}
	emptied := make([]int, 0, len(round.EmptiedTiers))
	for _, d := range round.EmptiedTiers {
		emptied = append(emptied, int(d))
	}
	writeJSON(w, r, http.StatusOK, roundResponse{
		Round:        round,
		Fills:        fills,
		EmptiedTiers: emptied,
		RequestID:    middleware.GetReqID(r.Context()),
	})
}

// GET /rounds/{id}/fills
func (s *server) listFills(w http.ResponseWriter, r *http.Request) {
	if s.fills == nil {
		writeProblem(w, r, http.StatusNotImplemented, "journal_disabled", "no database configured")
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", "invalid round id")
		return
	}

	rows, err := s.fills.ListFills(r.Context(), id)
	if err != nil {
		s.log.WithError(err).WithFields(logger.Fields{"round_id": id}).Error("list fills failed")
		writeProblem(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, rows)
}
