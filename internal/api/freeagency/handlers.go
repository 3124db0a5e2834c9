// internal/api/freeagency/handlers.go
package freeagency

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguebids/internal/api/apiutil"
	"github.com/codr1/leaguebids/internal/api/authz"
	"github.com/codr1/leaguebids/internal/auction"
	"github.com/codr1/leaguebids/internal/ratelimit"
)

const (
	requestTimeout  = 5 * time.Second
	auctionIDParam  = "id"
	teamIDParam     = "id"
	statusQueryKey  = "status"
	maxWindowPeriod = 30 * 24 * time.Hour
)

type Handlers struct {
	engine     *auction.Engine
	limiter    *ratelimit.Limiter
	trustProxy bool
}

func NewHandlers(engine *auction.Engine, limiter *ratelimit.Limiter, trustProxy bool) *Handlers {
	return &Handlers{engine: engine, limiter: limiter, trustProxy: trustProxy}
}

func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/auctions", h.HandleListAuctions)
	mux.HandleFunc("POST /api/v1/auctions", h.HandleOpenAuction)
	mux.HandleFunc("GET /api/v1/auctions/{id}", h.HandleAuctionDetail)
	mux.HandleFunc("POST /api/v1/auctions/{id}/bids", h.HandleSubmitBid)
	mux.HandleFunc("POST /api/v1/auctions/{id}/cancel", h.HandleCancelAuction)
	mux.HandleFunc("POST /api/v1/auctions/{id}/settle", h.HandleSettleAuction)
	mux.HandleFunc("POST /api/v1/admin/auctions/reset-timers", h.HandleResetTimers)
	mux.HandleFunc("GET /api/v1/teams/{id}/cap", h.HandleTeamCap)
}

type openAuctionRequest struct {
	PlayerID      string `json:"player_id"`
	WindowSeconds *int64 `json:"window_seconds,omitempty"`
}

type bidRequest struct {
	TeamID string         `json:"team_id"`
	Amount apiutil.Amount `json:"amount"`
}

type resetTimersRequest struct {
	WindowSeconds int64 `json:"window_seconds"`
}

// HandleListAuctions handles GET /api/v1/auctions?status=open,extended.
func (h *Handlers) HandleListAuctions(w http.ResponseWriter, r *http.Request) {
	if !apiutil.Authorize(w, r, authz.ActionViewAuctions, authz.Resource{}) {
		return
	}

	statuses, err := parseStatuses(r.URL.Query().Get(statusQueryKey))
	if err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Code: "invalid_status", Message: err.Error(), Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	auctions, err := h.engine.List(ctx, statuses...)
	if err != nil {
		apiutil.WriteError(w, r, engineError(err))
		return
	}

	resp := make([]auctionResponse, 0, len(auctions))
	for _, a := range auctions {
		resp = append(resp, toAuctionResponse(a))
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, map[string]any{"auctions": resp})
}

// HandleAuctionDetail handles GET /api/v1/auctions/{id}.
func (h *Handlers) HandleAuctionDetail(w http.ResponseWriter, r *http.Request) {
	auctionID := strings.TrimSpace(r.PathValue(auctionIDParam))
	if !apiutil.Authorize(w, r, authz.ActionViewAuctions, authz.Resource{AuctionID: auctionID}) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	a, err := h.engine.Get(ctx, auctionID)
	if err != nil {
		apiutil.WriteError(w, r, engineError(err))
		return
	}
	bids, err := h.engine.Bids(ctx, auctionID)
	if err != nil {
		apiutil.WriteError(w, r, engineError(err))
		return
	}

	history := make([]bidHistoryEntry, 0, len(bids))
	for _, b := range bids {
		history = append(history, bidHistoryEntry{ID: b.ID, TeamID: b.TeamID, Amount: b.Amount, PlacedAt: b.PlacedAt})
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, auctionDetailResponse{Auction: toAuctionResponse(a), Bids: history})
}

// HandleOpenAuction handles POST /api/v1/auctions.
func (h *Handlers) HandleOpenAuction(w http.ResponseWriter, r *http.Request) {
	if !apiutil.Authorize(w, r, authz.ActionOpenAuction, authz.Resource{}) {
		return
	}

	var req openAuctionRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "Invalid JSON body", Err: err})
		return
	}
	req.PlayerID = strings.TrimSpace(req.PlayerID)
	if req.PlayerID == "" {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "player_id is required"})
		return
	}

	in := auction.OpenInput{PlayerID: req.PlayerID}
	if req.WindowSeconds != nil {
		window, err := parseWindow(*req.WindowSeconds)
		if err != nil {
			apiutil.WriteError(w, r, engineError(err))
			return
		}
		in.Window = window
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	a, err := h.engine.OpenAuction(ctx, in)
	if err != nil {
		apiutil.WriteError(w, r, engineError(err))
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusCreated, toAuctionResponse(a))
}

// HandleSubmitBid handles POST /api/v1/auctions/{id}/bids. Business
// rejections are reported with accepted=false and a 200 status.
func (h *Handlers) HandleSubmitBid(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	auctionID := strings.TrimSpace(r.PathValue(auctionIDParam))

	var req bidRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "Invalid bid: " + err.Error(), Err: err})
		return
	}
	req.TeamID = strings.TrimSpace(req.TeamID)
	if req.TeamID == "" {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "team_id is required"})
		return
	}

	if !apiutil.Authorize(w, r, authz.ActionPlaceBid, authz.Resource{AuctionID: auctionID, TeamID: req.TeamID}) {
		return
	}

	if h.limiter != nil {
		ip := ratelimit.GetClientIP(r, h.trustProxy)
		if result := h.limiter.AllowBid(req.TeamID, ip); !result.Allowed {
			ratelimit.LogRateLimitExceeded("bid", req.TeamID, ip, result.Reason)
			w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusTooManyRequests, Code: "rate_limited", Message: "Too many bids, slow down"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := h.engine.SubmitBid(ctx, auction.BidInput{
		AuctionID: auctionID,
		TeamID:    req.TeamID,
		Amount:    int64(req.Amount),
	})
	if err != nil {
		apiutil.WriteError(w, r, engineError(err))
		return
	}

	logger.Debug().
		Str("auction_id", auctionID).
		Str("team_id", req.TeamID).
		Bool("accepted", result.Accepted).
		Str("reason", string(result.Reason)).
		Msg("Bid evaluated")
	_ = apiutil.WriteJSON(w, http.StatusOK, toBidResponse(result))
}

// HandleCancelAuction handles POST /api/v1/auctions/{id}/cancel.
func (h *Handlers) HandleCancelAuction(w http.ResponseWriter, r *http.Request) {
	auctionID := strings.TrimSpace(r.PathValue(auctionIDParam))
	if !apiutil.Authorize(w, r, authz.ActionCancelAuction, authz.Resource{AuctionID: auctionID}) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	a, err := h.engine.CancelAuction(ctx, auctionID)
	if err != nil {
		apiutil.WriteError(w, r, engineError(err))
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, cancelResponse{Success: true, Auction: toAuctionResponse(a)})
}

// HandleSettleAuction handles POST /api/v1/auctions/{id}/settle.
func (h *Handlers) HandleSettleAuction(w http.ResponseWriter, r *http.Request) {
	auctionID := strings.TrimSpace(r.PathValue(auctionIDParam))
	if !apiutil.Authorize(w, r, authz.ActionSettleAuction, authz.Resource{AuctionID: auctionID}) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	settlement, err := h.engine.Settle(ctx, auctionID)
	if err != nil {
		apiutil.WriteError(w, r, engineError(err))
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, toSettlementResponse(settlement))
}

// HandleResetTimers handles POST /api/v1/admin/auctions/reset-timers.
func (h *Handlers) HandleResetTimers(w http.ResponseWriter, r *http.Request) {
	if !apiutil.Authorize(w, r, authz.ActionResetTimers, authz.Resource{}) {
		return
	}

	var req resetTimersRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "Invalid JSON body", Err: err})
		return
	}
	window, err := parseWindow(req.WindowSeconds)
	if err != nil {
		apiutil.WriteError(w, r, engineError(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	n, err := h.engine.ResetTimers(ctx, window)
	if err != nil {
		apiutil.WriteError(w, r, engineError(err))
		return
	}

	user := authz.UserFromContext(r.Context())
	log.Ctx(r.Context()).Info().
		Str("user_id", user.ID).
		Int("reset", n).
		Dur("window", window).
		Msg("Auction timers reset")
	_ = apiutil.WriteJSON(w, http.StatusOK, resetTimersResponse{Reset: n, WindowSeconds: req.WindowSeconds})
}

// HandleTeamCap handles GET /api/v1/teams/{id}/cap.
func (h *Handlers) HandleTeamCap(w http.ResponseWriter, r *http.Request) {
	teamID := strings.TrimSpace(r.PathValue(teamIDParam))
	if !apiutil.Authorize(w, r, authz.ActionViewAuctions, authz.Resource{TeamID: teamID}) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	state, err := h.engine.TeamCap(ctx, teamID)
	if err != nil {
		apiutil.WriteError(w, r, engineError(err))
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, toCapResponse(state))
}

func parseStatuses(raw string) ([]auction.Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []auction.Status
	for _, part := range strings.Split(raw, ",") {
		s := auction.Status(strings.ToLower(strings.TrimSpace(part)))
		switch s {
		case auction.StatusOpen, auction.StatusExtended, auction.StatusClosed, auction.StatusSettled, auction.StatusCancelled:
			out = append(out, s)
		default:
			return nil, errors.New("unknown status " + strconv.Quote(part))
		}
	}
	return out, nil
}

func parseWindow(seconds int64) (time.Duration, error) {
	if seconds <= 0 || seconds > int64(maxWindowPeriod/time.Second) {
		return 0, auction.ErrInvalidWindow
	}
	return time.Duration(seconds) * time.Second, nil
}

func engineError(err error) apiutil.HandlerError {
	herr := func(status int, code string) apiutil.HandlerError {
		return apiutil.HandlerError{Status: status, Code: code, Message: err.Error(), Err: err}
	}
	switch {
	case errors.Is(err, auction.ErrAuctionNotFound):
		return herr(http.StatusNotFound, "auction_not_found")
	case errors.Is(err, auction.ErrTeamNotFound):
		return herr(http.StatusNotFound, "team_not_found")
	case errors.Is(err, auction.ErrPlayerNotFound):
		return herr(http.StatusNotFound, "player_not_found")
	case errors.Is(err, auction.ErrPlayerUnavailable):
		return herr(http.StatusConflict, "player_unavailable")
	case errors.Is(err, auction.ErrAuctionExists):
		return herr(http.StatusConflict, "auction_exists")
	case errors.Is(err, auction.ErrAuctionClosed):
		return herr(http.StatusConflict, "auction_closed")
	case errors.Is(err, auction.ErrAuctionCancelled):
		return herr(http.StatusConflict, "auction_cancelled")
	case errors.Is(err, auction.ErrNotExpired):
		return herr(http.StatusConflict, "not_expired")
	case errors.Is(err, auction.ErrInvalidAmount):
		return herr(http.StatusBadRequest, "invalid_amount")
	case errors.Is(err, auction.ErrInvalidWindow):
		return herr(http.StatusBadRequest, "invalid_window")
	case errors.Is(err, context.DeadlineExceeded):
		return apiutil.HandlerError{Status: http.StatusServiceUnavailable, Code: "timeout", Message: "Request timed out", Err: err}
	default:
		return apiutil.HandlerError{Status: http.StatusInternalServerError, Code: "internal", Message: "Internal server error", Err: err}
	}
}
