package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wallet-notifier/internal/domain"
	"wallet-notifier/internal/errtrack"
	"wallet-notifier/internal/pipeline"
	"wallet-notifier/internal/stellar"
	"wallet-notifier/internal/storage"
	"wallet-notifier/internal/worker"
)

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Worker       *worker.Status           `json:"worker,omitempty"`
	WorkerError  string                   `json:"worker_error,omitempty"`
	Accounts     []pipeline.AccountStatus `json:"accounts"`
	RecentErrors []errtrack.Report        `json:"recent_errors,omitempty"`
}

// AccountResponse is the JSON form of a tracked account.
type AccountResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
	Testnet   bool   `json:"testnet"`
	CreatedAt int64  `json:"created_at"`
}

func accountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID,
		Name:      a.Name,
		PublicKey: a.PublicKey,
		Testnet:   a.Testnet,
		CreatedAt: a.CreatedAt,
	}
}

// TradeResponse is the JSON form of a journaled trade.
type TradeResponse struct {
	TradeID      string `json:"trade_id"`
	OfferID      string `json:"offer_id"`
	EffectID     string `json:"effect_id"`
	Selling      string `json:"selling"`
	Buying       string `json:"buying"`
	SoldAmount   string `json:"sold_amount"`
	BoughtAmount string `json:"bought_amount"`
	Price        string `json:"price"`
	Details      string `json:"details"`
	OccurredAt   int64  `json:"occurred_at"`
	NotifiedAt   int64  `json:"notified_at"`
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := StatusResponse{Accounts: s.deps.Notifier.Status()}

	if s.deps.Worker != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		st, err := s.deps.Worker.Status(ctx)
		if err != nil {
			resp.WorkerError = err.Error()
		} else {
			resp.Worker = st
		}
	}
	if s.deps.Errors != nil {
		resp.RecentErrors = s.deps.Errors.Recent()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListAccounts(c *gin.Context) {
	accounts, err := s.deps.Accounts.List(c.Request.Context())
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	out := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountResponse(a))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAddAccount(c *gin.Context) {
	var req struct {
		PublicKey string `json:"public_key"`
		Name      string `json:"name"`
		Testnet   bool   `json:"testnet"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	req.PublicKey = strings.TrimSpace(req.PublicKey)
	if err := stellar.ValidateAccountID(req.PublicKey); err != nil {
		abort(c, http.StatusBadRequest, fmt.Errorf("public_key: %w", err))
		return
	}

	account := &domain.Account{
		ID:        domain.AccountID(req.PublicKey, req.Testnet),
		Name:      strings.TrimSpace(req.Name),
		PublicKey: req.PublicKey,
		Testnet:   req.Testnet,
		CreatedAt: s.clock().UnixMilli(),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	// Unfunded accounts do not exist on the ledger and have no effects.
	data, err := s.deps.Worker.AccountData(ctx, account.Network(), account.PublicKey)
	switch {
	case worker.IsNotFound(err):
		abort(c, http.StatusUnprocessableEntity, fmt.Errorf("account %s is not funded on %s", account.PublicKey, account.Network()))
		return
	case err != nil:
		abort(c, http.StatusBadGateway, fmt.Errorf("load account: %w", err))
		return
	}

	if err := s.deps.Accounts.Upsert(ctx, account); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	stored, err := s.deps.Accounts.Get(ctx, account.ID)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	if err := s.deps.Notifier.Track(*stored); err != nil {
		abort(c, http.StatusBadGateway, err)
		return
	}

	s.logger.Printf("account %s (%s) added, %d balances", stored.ID, stored.Name, len(data.Balances))
	c.JSON(http.StatusCreated, accountResponse(stored))
}

func (s *Server) handleDeleteAccount(c *gin.Context) {
	id := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	if err := s.deps.Accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			abort(c, http.StatusNotFound, fmt.Errorf("account %s not found", id))
			return
		}
		abort(c, http.StatusInternalServerError, err)
		return
	}

	if err := s.deps.Notifier.Untrack(id); err != nil && !errors.Is(err, pipeline.ErrNotTracked) {
		s.logger.Printf("untrack %s: %v", id, err)
	}
	if s.deps.Cursors != nil {
		if err := s.deps.Cursors.DeleteCursor(ctx, id); err != nil {
			s.logger.Printf("delete cursor of %s: %v", id, err)
		}
	}

	s.logger.Printf("account %s removed", id)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleActivity(c *gin.Context) {
	effects, err := s.deps.Notifier.Activity(c.Param("id"))
	if err != nil {
		if errors.Is(err, pipeline.ErrNotTracked) {
			abort(c, http.StatusNotFound, err)
			return
		}
		abort(c, http.StatusInternalServerError, err)
		return
	}
	if effects == nil {
		effects = []domain.Effect{}
	}
	c.JSON(http.StatusOK, effects)
}

// handleTrades lists journaled trades. With ?asset=KEY only trades that sold
// or bought that asset are listed; a key matching no journaled asset is 404.
func (s *Server) handleTrades(c *gin.Context) {
	if s.deps.Trades == nil {
		abort(c, http.StatusNotFound, errors.New("trade journal disabled"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	trades, err := s.deps.Trades.ListByAccount(ctx, c.Param("id"))
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}

	if key := c.Query("asset"); key != "" {
		asset, err := domain.SelectAsset(tradedAssets(trades), key)
		if err != nil {
			s.logger.Printf("trades of %s: %v", c.Param("id"), err)
			abort(c, http.StatusNotFound, err)
			return
		}
		filtered := trades[:0]
		for _, t := range trades {
			if t.Selling == asset || t.Buying == asset {
				filtered = append(filtered, t)
			}
		}
		trades = filtered
	}

	out := make([]TradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, TradeResponse{
			TradeID:      t.TradeID,
			OfferID:      t.OfferID.String(),
			EffectID:     t.EffectID,
			Selling:      t.Selling.String(),
			Buying:       t.Buying.String(),
			SoldAmount:   t.SoldAmount.String(),
			BoughtAmount: t.BoughtAmount.String(),
			Price:        t.Price.String(),
			Details:      t.Details(),
			OccurredAt:   t.OccurredAt,
			NotifiedAt:   t.NotifiedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func tradedAssets(trades []*domain.CompletedTrade) []domain.Asset {
	seen := make(map[domain.Asset]struct{})
	var assets []domain.Asset
	for _, t := range trades {
		for _, a := range []domain.Asset{t.Selling, t.Buying} {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			assets = append(assets, a)
		}
	}
	return assets
}

func (s *Server) handleLifecycle(c *gin.Context) {
	if s.deps.Worker == nil {
		abort(c, http.StatusServiceUnavailable, errors.New("worker unavailable"))
		return
	}
	sig, ok := worker.ParseSignal("app:" + c.Param("signal"))
	if !ok {
		abort(c, http.StatusBadRequest, fmt.Errorf("unknown signal %q", c.Param("signal")))
		return
	}

	switch sig {
	case worker.SignalPause:
		s.deps.Worker.Pause()
	case worker.SignalResume:
		s.deps.Worker.Resume()
	}
	c.JSON(http.StatusAccepted, gin.H{"signal": string(sig)})
}
