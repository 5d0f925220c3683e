package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"expenses.durgadawaghar.com/internal/extractor"
	"expenses.durgadawaghar.com/internal/logger"
	"expenses.durgadawaghar.com/internal/store"
	"expenses.durgadawaghar.com/internal/summary"
	"expenses.durgadawaghar.com/internal/views"
)

// recentPerMerchant bounds the expenses kept per merchant in summaries
const recentPerMerchant = 5

// Cache stores per-user expense listings between requests
type Cache interface {
	GetExpenses(ctx context.Context, phone string) ([]store.Expense, bool)
	SetExpenses(ctx context.Context, phone string, expenses []store.Expense) error
	Invalidate(ctx context.Context, phone string) error
}

// Options configures a Handler
type Options struct {
	// Cache is optional; nil disables caching
	Cache  Cache
	Style  extractor.SourceStyle
	Secret string
	Logger zerolog.Logger
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store  *store.Store
	engine *extractor.Engine
	cache  Cache
	style  extractor.SourceStyle
	secret string
	log    zerolog.Logger
	now    func() time.Time
}

// NewHandler creates a new Handler instance
func NewHandler(st *store.Store, engine *extractor.Engine, opts Options) *Handler {
	return &Handler{
		store:  st,
		engine: engine,
		cache:  opts.Cache,
		style:  opts.Style,
		secret: opts.Secret,
		log:    opts.Logger,
		now:    time.Now,
	}
}

// Home answers the keep-alive probe on /
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Write([]byte("Expense Tracker Backend is Live!"))
}

// Ping answers uptime monitors
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Pong"))
}

type loginRequest struct {
	Phone string `json:"phone"`
	PIN   string `json:"pin"`
}

type loginResponse struct {
	Success bool        `json:"success"`
	User    *store.User `json:"user,omitempty"`
	Message string      `json:"message"`
}

// Login signs a user in by phone and PIN, registering unknown phones
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" || req.PIN == "" {
		WriteJSON(w, http.StatusBadRequest, loginResponse{Message: "Missing fields"})
		return
	}

	ctx := r.Context()
	user, err := h.store.GetUserByPhone(ctx, req.Phone)
	if errors.Is(err, store.ErrNotFound) {
		user, err = h.store.CreateUser(ctx, req.Phone, req.PIN)
		if err != nil {
			h.logFor(ctx).Error().Err(err).Str("phone", req.Phone).Msg("registering user")
			WriteJSON(w, http.StatusInternalServerError, loginResponse{Message: "Internal error"})
			return
		}
		h.logFor(ctx).Info().Str("phone", req.Phone).Msg("account created")
		WriteJSON(w, http.StatusOK, loginResponse{Success: true, User: &user, Message: "Account created!"})
		return
	}
	if err != nil {
		h.logFor(ctx).Error().Err(err).Str("phone", req.Phone).Msg("loading user")
		WriteJSON(w, http.StatusInternalServerError, loginResponse{Message: "Internal error"})
		return
	}

	if err := store.CheckPIN(user, req.PIN); err != nil {
		WriteJSON(w, http.StatusUnauthorized, loginResponse{Message: "Wrong PIN"})
		return
	}
	WriteJSON(w, http.StatusOK, loginResponse{Success: true, User: &user, Message: "Login successful"})
}

type syncRequest struct {
	UserPhone   string `json:"user_phone"`
	Message     string `json:"message"`
	AppName     string `json:"app_name"`
	Secret      string `json:"secret"`
	SourceStyle string `json:"source_style"`
}

// Sync receives a forwarded notification and records it when it is a spend
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if h.secret == "" || subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.secret)) != 1 {
		http.Error(w, "Invalid Secret", http.StatusForbidden)
		return
	}
	if req.UserPhone == "" || req.Message == "" {
		http.Error(w, "Missing fields", http.StatusBadRequest)
		return
	}

	style, ok := h.resolveStyle(req.SourceStyle)
	if !ok {
		http.Error(w, "Unsupported source style", http.StatusBadRequest)
		return
	}

	result := h.engine.Extract(extractor.RawMessage{
		Text:        req.Message,
		SourceApp:   req.AppName,
		SourceStyle: style,
	})

	if result.Direction == extractor.Ignore {
		if result.Reason == extractor.ReasonCredit {
			w.Write([]byte("Ignored: Income transaction"))
			return
		}
		w.Write([]byte("Ignored: Not a transaction"))
		return
	}
	if !result.Recordable() {
		w.Write([]byte("No amount found"))
		return
	}

	ctx := r.Context()
	saved, err := h.store.CreateExpense(ctx, store.Expense{
		UserPhone:       req.UserPhone,
		Amount:          result.Amount,
		Merchant:        result.Merchant,
		Category:        string(result.Category),
		AppName:         req.AppName,
		SourceStyle:     string(style),
		OriginalMessage: req.Message,
		// agent retries of one notification land in the same minute
		Date: h.now().Truncate(time.Minute),
	})
	if errors.Is(err, store.ErrDuplicate) {
		w.Write([]byte("Duplicate ignored"))
		return
	}
	if err != nil {
		h.logFor(ctx).Error().Err(err).Str("phone", req.UserPhone).Msg("saving expense")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	h.invalidate(ctx, req.UserPhone)
	h.logFor(ctx).Info().
		Str("id", saved.ID).
		Str("amount", saved.Amount.String()).
		Str("merchant", saved.Merchant).
		Str("category", saved.Category).
		Str("phone", saved.UserPhone).
		Msg("expense saved")
	w.Write([]byte("Saved"))
}

type parseRequest struct {
	Message     string `json:"message"`
	SourceStyle string `json:"source_style"`
}

type parseResponse struct {
	Style      extractor.SourceStyle  `json:"sourceStyle"`
	Direction  extractor.Direction    `json:"direction"`
	Reason     extractor.IgnoreReason `json:"reason,omitempty"`
	Amount     float64                `json:"amount"`
	Merchant   string                 `json:"merchant"`
	Category   extractor.Category     `json:"category"`
	Recordable bool                   `json:"recordable"`
}

// Parse runs a message through the engine without storing anything
func (h *Handler) Parse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request")
		return
	}
	style, ok := h.resolveStyle(req.SourceStyle)
	if !ok {
		WriteError(w, http.StatusBadRequest, "unsupported source style")
		return
	}

	result := h.engine.Extract(extractor.RawMessage{Text: req.Message, SourceStyle: style})
	WriteJSON(w, http.StatusOK, parseResponse{
		Style:      style,
		Direction:  result.Direction,
		Reason:     result.Reason,
		Amount:     result.Amount.InexactFloat64(),
		Merchant:   result.Merchant,
		Category:   result.Category,
		Recordable: result.Recordable(),
	})
}

// Expenses lists a user's expenses, newest first
func (h *Handler) Expenses(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		http.Error(w, "Phone required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	expenses, err := h.listExpenses(ctx, phone)
	if err != nil {
		h.logFor(ctx).Error().Err(err).Str("phone", phone).Msg("listing expenses")
		WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	WriteJSON(w, http.StatusOK, expenses)
}

// Summary returns per-category and per-merchant totals for a user
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		http.Error(w, "Phone required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	expenses, err := h.listExpenses(ctx, phone)
	if err != nil {
		h.logFor(ctx).Error().Err(err).Str("phone", phone).Msg("listing expenses")
		WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	WriteJSON(w, http.StatusOK, summary.Build(expenses, recentPerMerchant))
}

// Dashboard renders the HTML overview for a user
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		http.Error(w, "Phone required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	expenses, err := h.listExpenses(ctx, phone)
	if err != nil {
		h.logFor(ctx).Error().Err(err).Str("phone", phone).Msg("listing expenses")
		http.Error(w, "Error loading expenses", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	s := summary.Build(expenses, recentPerMerchant)
	if err := views.Dashboard(phone, expenses, s, h.now()).Render(ctx, w); err != nil {
		h.logFor(ctx).Error().Err(err).Msg("rendering dashboard")
	}
}

// logFor prefers the request-scoped logger set by RequestLogger
func (h *Handler) logFor(ctx context.Context) *zerolog.Logger {
	if l := logger.FromContext(ctx); l.GetLevel() != zerolog.Disabled {
		return &l
	}
	return &h.log
}

func (h *Handler) resolveStyle(requested string) (extractor.SourceStyle, bool) {
	style := h.style
	if requested != "" {
		parsed, err := extractor.ParseSourceStyle(requested)
		if err != nil {
			return "", false
		}
		style = parsed
	}
	_, ok := h.engine.Rules(style)
	return style, ok
}

func (h *Handler) listExpenses(ctx context.Context, phone string) ([]store.Expense, error) {
	if h.cache != nil {
		if expenses, ok := h.cache.GetExpenses(ctx, phone); ok {
			return expenses, nil
		}
	}

	expenses, err := h.store.ListExpenses(ctx, phone)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.SetExpenses(ctx, phone, expenses); err != nil {
			h.logFor(ctx).Warn().Err(err).Str("phone", phone).Msg("caching expenses")
		}
	}
	return expenses, nil
}

func (h *Handler) invalidate(ctx context.Context, phone string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, phone); err != nil {
		h.logFor(ctx).Warn().Err(err).Str("phone", phone).Msg("invalidating cache")
	}
}
