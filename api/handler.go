package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ratio-backtester/internal/config"
	"ratio-backtester/internal/engine"
	"ratio-backtester/internal/grid"
	"ratio-backtester/internal/model"
	"ratio-backtester/internal/selector"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	db       *pgxpool.Pool
	logger   *zap.Logger
	runner   *grid.Runner
	extender *grid.Extender
	selector *selector.Selector
	cfg      *config.Config
}

func NewHandler(db *pgxpool.Pool, logger *zap.Logger, runner *grid.Runner, extender *grid.Extender, sel *selector.Selector, cfg *config.Config) *Handler {
	return &Handler{
		db:       db,
		logger:   logger,
		runner:   runner,
		extender: extender,
		selector: sel,
		cfg:      cfg,
	}
}

// Auth Handlers

func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	var userID int64
	err = h.db.QueryRow(c.Request.Context(),
		"INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id",
		req.Email, string(hash)).Scan(&userID)

	if err != nil {
		h.logger.Error("failed to register user", zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": "email already exists"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "user created", "id": userID})
}

func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var userID int64
	var hash string
	err := h.db.QueryRow(c.Request.Context(),
		"SELECT id, password_hash FROM users WHERE email = $1", req.Email).Scan(&userID, &hash)

	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	token, err := GenerateToken(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Data Handlers

// GetTopPerformers ranks combinations by true compounding ROI.
// GET /performers?n=10&start=2024-01-02&end=2024-03-01&symbols=AAPL,MSFT&methods=EQUAL_MEAN&sessions=PRIMARY
func (h *Handler) GetTopPerformers(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("n", "10"))
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
		return
	}

	f := selector.Filter{Symbols: csvParam(c.Query("symbols"))}

	if f.Start, err = dateParam(c.Query("start")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be YYYY-MM-DD"})
		return
	}
	if f.End, err = dateParam(c.Query("end")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be YYYY-MM-DD"})
		return
	}
	if f.Methods, err = parseMethods(csvParam(c.Query("methods"))); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if f.Sessions, err = parseSessions(csvParam(c.Query("sessions"))); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ranked, err := h.selector.TopPerformers(c.Request.Context(), f, n)
	if err != nil {
		h.logger.Error("failed to rank performers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, ranked)
}

type runGridRequest struct {
	RunID    string    `json:"run_id"`
	Symbols  []string  `json:"symbols" binding:"required"`
	Methods  []string  `json:"methods"`
	Sessions []string  `json:"sessions"`
	BuyPcts  []float64 `json:"buy_pcts"`
	SellPcts []float64 `json:"sell_pcts"`
	Start    time.Time `json:"start_time" binding:"required"`
	End      time.Time `json:"end_time" binding:"required"`
}

// RunGrid launches a grid run in the background and returns its run id.
// Progress streams on backtest.progress.<run_id>.
func (h *Handler) RunGrid(c *gin.Context) {
	var req runGridRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	methods, err := parseMethods(req.Methods)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sessions, err := parseSessions(req.Sessions)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID := req.RunID
	if runID == "" {
		runID = "run-" + time.Now().UTC().Format("20060102T150405")
	}

	gc := grid.Config{
		Symbols:         req.Symbols,
		Methods:         methods,
		Sessions:        sessions,
		BuyPcts:         h.pcts(req.BuyPcts, h.cfg.BuyPctMin, h.cfg.BuyPctMax),
		SellPcts:        h.pcts(req.SellPcts, h.cfg.SellPctMin, h.cfg.SellPctMax),
		Start:           req.Start,
		End:             req.End,
		InitialCash:     decimal.NewFromFloat(h.cfg.InitialCash),
		Workers:         h.cfg.Workers,
		CheckpointEvery: h.cfg.CheckpointEvery,
		Sim:             h.simConfig(),
	}

	go func() {
		if _, err := h.runner.Run(context.Background(), runID, gc); err != nil {
			h.logger.Error("grid run failed", zap.String("run_id", runID), zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"run_id":         runID,
		"progress_topic": "backtest.progress." + runID,
		"summary_topic":  "backtest.summary." + runID,
	})
}

type extendDayRequest struct {
	RunID    string    `json:"run_id"`
	Symbols  []string  `json:"symbols" binding:"required"`
	Methods  []string  `json:"methods"`
	Sessions []string  `json:"sessions"`
	BuyPcts  []float64 `json:"buy_pcts"`
	SellPcts []float64 `json:"sell_pcts"`
	Day      time.Time `json:"day" binding:"required"`
}

// ExtendDay replays a single new trading day on top of persisted history.
func (h *Handler) ExtendDay(c *gin.Context) {
	var req extendDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	methods, err := parseMethods(req.Methods)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sessions, err := parseSessions(req.Sessions)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID := req.RunID
	if runID == "" {
		runID = "extend-" + req.Day.Format("2006-01-02")
	}

	summary, err := h.extender.Run(c.Request.Context(), runID, grid.ExtendConfig{
		Symbols:     req.Symbols,
		Methods:     methods,
		Sessions:    sessions,
		BuyPcts:     h.pcts(req.BuyPcts, h.cfg.BuyPctMin, h.cfg.BuyPctMax),
		SellPcts:    h.pcts(req.SellPcts, h.cfg.SellPctMin, h.cfg.SellPctMax),
		Day:         req.Day,
		InitialCash: decimal.NewFromFloat(h.cfg.InitialCash),
		Workers:     h.cfg.Workers,
		Sim:         h.simConfig(),
	})
	if err != nil {
		h.logger.Error("extend run failed", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "extend failed"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Param helpers

func (h *Handler) simConfig() engine.SimConfig {
	return h.cfg.SimConfig()
}

// pcts turns an explicit request list into decimals, falling back to the
// configured [min, max] grid when the request omits it.
func (h *Handler) pcts(explicit []float64, min, max float64) []decimal.Decimal {
	values := explicit
	if len(values) == 0 {
		values = config.PctRange(min, max, h.cfg.PctStep)
	}
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		out = append(out, decimal.NewFromFloat(v))
	}
	return out
}

func csvParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

func dateParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}

func parseMethods(raw []string) ([]model.Method, error) {
	out := make([]model.Method, 0, len(raw))
	for _, r := range raw {
		m, err := model.ParseMethod(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func parseSessions(raw []string) ([]model.Session, error) {
	out := make([]model.Session, 0, len(raw))
	for _, r := range raw {
		s, err := model.ParseSession(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
