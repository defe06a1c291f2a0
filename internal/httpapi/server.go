// Package httpapi is the HTTP façade over per-property purchase sessions.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/slotmarket/internal/journal"
	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey   = "auth_claims"
	requestIDHeader    = "X-Request-ID"
	defaultHistorySize = 50
	shutdownTimeout    = 5 * time.Second
)

// Config carries the router settings.
type Config struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Handler serves the purchase session routes.
type Handler struct {
	logger   *zap.Logger
	registry *Registry
	session  purchase.Session
	history  journal.Store
	cfg      Config
}

// NewHandler wires a Handler. history may be nil, in which case /api/history
// answers with an empty list.
func NewHandler(logger *zap.Logger, registry *Registry, session purchase.Session, history journal.Store, cfg Config) (*Handler, error) {
	if logger == nil {
		return nil, errors.New("httpapi: logger is nil")
	}
	if registry == nil {
		return nil, errors.New("httpapi: registry is nil")
	}
	if session == nil {
		return nil, errors.New("httpapi: session is nil")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Handler{logger: logger, registry: registry, session: session, history: history, cfg: cfg}, nil
}

// Serve runs handler on listenAddr until ctx is done.
func Serve(ctx context.Context, listenAddr string, handler http.Handler, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("slotmarket http listening", zap.String("addr", listenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter builds the gin engine. All /api routes sit behind the session validator.
func NewRouter(cfg Config, handler *Handler, validator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey))

	properties := api.Group("/properties/:address")
	properties.POST("/session", handler.handleMount)
	properties.GET("/session", handler.handleSnapshot)
	properties.DELETE("/session", handler.handleUnmount)
	properties.GET("/slots", handler.handleSlots)
	properties.POST("/slots/:id/toggle", handler.handleToggle)
	properties.PUT("/promo", handler.handlePromo)
	properties.POST("/purchase", handler.handlePurchase)
	properties.POST("/confirm", handler.handleConfirm)
	properties.POST("/retry", handler.handleRetry)
	properties.POST("/acknowledge", handler.handleAcknowledge)
	properties.POST("/refresh", handler.handleRefresh)

	api.POST("/network/switch", handler.handleSwitchNetwork)
	api.GET("/history", handler.handleHistory)

	return router
}

func requestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		value := ctx.GetHeader(requestIDHeader)
		if value == "" {
			value = uuid.NewString()
		}
		ctx.Writer.Header().Set(requestIDHeader, value)
		ctx.Next()
	}
}

func (handler *Handler) handleMount(ctx *gin.Context) {
	owner, property, ok := handler.sessionTarget(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	orchestrator, err := handler.registry.Open(requestCtx, owner, property)
	if err != nil {
		handler.respondError(ctx, "mount", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"session": newSnapshotPayload(orchestrator.Snapshot())})
}

func (handler *Handler) handleUnmount(ctx *gin.Context) {
	owner, property, ok := handler.sessionTarget(ctx)
	if !ok {
		return
	}
	if err := handler.registry.Close(owner, property); err != nil {
		handler.respondError(ctx, "unmount", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *Handler) handleSnapshot(ctx *gin.Context) {
	orchestrator, ok := handler.orchestrator(ctx)
	if !ok {
		return
	}
	handler.respondSnapshot(ctx, http.StatusOK, orchestrator)
}

func (handler *Handler) handleSlots(ctx *gin.Context) {
	orchestrator, ok := handler.orchestrator(ctx)
	if !ok {
		return
	}
	snapshot := newSnapshotPayload(orchestrator.Snapshot())
	ctx.JSON(http.StatusOK, gin.H{"slots": snapshot.Slots, "selection": snapshot.Selection})
}

func (handler *Handler) handleToggle(ctx *gin.Context) {
	orchestrator, ok := handler.orchestrator(ctx)
	if !ok {
		return
	}
	rawID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidSlotID, "slot id must be an integer"))
		return
	}
	if err := orchestrator.ToggleSlot(purchase.SlotID(rawID)); err != nil {
		handler.respondError(ctx, "toggle", err)
		return
	}
	handler.respondSnapshot(ctx, http.StatusOK, orchestrator)
}

func (handler *Handler) handlePromo(ctx *gin.Context) {
	orchestrator, ok := handler.orchestrator(ctx)
	if !ok {
		return
	}
	var request promoRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body with code"))
		return
	}
	if err := orchestrator.SetPromoCode(request.Code); err != nil {
		handler.respondError(ctx, "promo", err)
		return
	}
	handler.respondSnapshot(ctx, http.StatusAccepted, orchestrator)
}

func (handler *Handler) handlePurchase(ctx *gin.Context) {
	orchestrator, ok := handler.orchestrator(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	if err := orchestrator.Purchase(requestCtx); err != nil {
		handler.respondError(ctx, "purchase", err)
		return
	}
	handler.respondSnapshot(ctx, http.StatusOK, orchestrator)
}

func (handler *Handler) handleConfirm(ctx *gin.Context) {
	orchestrator, ok := handler.orchestrator(ctx)
	if !ok {
		return
	}
	if err := orchestrator.Confirm(ctx.Request.Context()); err != nil {
		handler.respondError(ctx, "confirm", err)
		return
	}
	handler.respondSnapshot(ctx, http.StatusAccepted, orchestrator)
}

func (handler *Handler) handleRetry(ctx *gin.Context) {
	orchestrator, ok := handler.orchestrator(ctx)
	if !ok {
		return
	}
	if err := orchestrator.Retry(); err != nil {
		handler.respondError(ctx, "retry", err)
		return
	}
	handler.respondSnapshot(ctx, http.StatusOK, orchestrator)
}

func (handler *Handler) handleAcknowledge(ctx *gin.Context) {
	orchestrator, ok := handler.orchestrator(ctx)
	if !ok {
		return
	}
	if err := orchestrator.Acknowledge(); err != nil {
		handler.respondError(ctx, "acknowledge", err)
		return
	}
	handler.respondSnapshot(ctx, http.StatusOK, orchestrator)
}

func (handler *Handler) handleRefresh(ctx *gin.Context) {
	orchestrator, ok := handler.orchestrator(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	if err := orchestrator.RefreshInventory(requestCtx); err != nil {
		handler.respondError(ctx, "refresh", err)
		return
	}
	handler.respondSnapshot(ctx, http.StatusOK, orchestrator)
}

// handleSwitchNetwork switches through the caller's sessions so each one
// re-reads its views; without sessions it switches the wallet session directly.
func (handler *Handler) handleSwitchNetwork(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorUnauthorized, "missing session"))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	owned := handler.registry.Owned(claims.GetUserID())
	var err error
	if len(owned) == 0 {
		err = handler.session.SwitchNetwork(requestCtx)
	}
	for _, orchestrator := range owned {
		if err = orchestrator.SwitchNetwork(requestCtx); err != nil {
			break
		}
	}
	if err != nil {
		handler.respondError(ctx, "switch_network", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"chain_id":      handler.session.ChainID(),
		"wrong_network": handler.session.IsWrongNetwork(),
	})
}

func (handler *Handler) handleHistory(ctx *gin.Context) {
	if getClaims(ctx) == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorUnauthorized, "missing session"))
		return
	}
	limit := defaultHistorySize
	if rawLimit := ctx.Query("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed <= 0 {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidLimit, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	wallet := handler.session.Account()
	entries := make([]submissionPayload, 0)
	if handler.history != nil && !wallet.IsZero() {
		requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
		defer cancel()
		submissions, err := handler.history.ListByWallet(requestCtx, wallet, limit)
		if err != nil {
			handler.respondError(ctx, "history", err)
			return
		}
		for _, submission := range submissions {
			entries = append(entries, newSubmissionPayload(submission))
		}
	}
	ctx.JSON(http.StatusOK, gin.H{"wallet": wallet.String(), "entries": entries})
}

// sessionTarget resolves the caller and the :address parameter, writing the
// error response itself when either is missing.
func (handler *Handler) sessionTarget(ctx *gin.Context) (string, purchase.Address, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorUnauthorized, "missing session"))
		return "", purchase.Address{}, false
	}
	property, err := purchase.NewAddress(ctx.Param("address"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidAddress, err.Error()))
		return "", purchase.Address{}, false
	}
	return claims.GetUserID(), property, true
}

func (handler *Handler) orchestrator(ctx *gin.Context) (*purchase.Orchestrator, bool) {
	owner, property, ok := handler.sessionTarget(ctx)
	if !ok {
		return nil, false
	}
	orchestrator, err := handler.registry.Get(owner, property)
	if err != nil {
		handler.respondError(ctx, "lookup", err)
		return nil, false
	}
	return orchestrator, true
}

func (handler *Handler) respondSnapshot(ctx *gin.Context, status int, orchestrator *purchase.Orchestrator) {
	ctx.JSON(status, gin.H{"session": newSnapshotPayload(orchestrator.Snapshot())})
}

func (handler *Handler) respondError(ctx *gin.Context, action string, err error) {
	status, code := mapError(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error("request failed",
			zap.String("action", action),
			zap.String("request_id", ctx.Writer.Header().Get(requestIDHeader)),
			zap.Error(err),
		)
	}
	ctx.JSON(status, errorResponse(code, fmt.Sprintf("%s: %v", action, err)))
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}
