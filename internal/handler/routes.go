package handler

import "net/http"

// Routes registers every endpoint on a new mux
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Keep-alive
	mux.HandleFunc("/", h.Home)
	mux.HandleFunc("/ping", h.Ping)

	// API
	mux.HandleFunc("/api/auth/login", h.Login)
	mux.HandleFunc("/api/sync", h.Sync)
	mux.HandleFunc("/api/parse", h.Parse)
	mux.HandleFunc("/api/expenses", h.Expenses)
	mux.HandleFunc("/api/summary", h.Summary)

	// Pages
	mux.HandleFunc("/dashboard", h.Dashboard)

	return mux
}
