package api

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
)

//go:embed static/*
var staticFiles embed.FS

// Routes assembles the full HTTP surface: pages, form mutations, the live
// websocket, uploaded media and static assets.
func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware)
	r.Use(h.WithUser)

	r.Get("/", h.handleHome)
	r.Get("/user/{username}", h.handleUserHome)

	r.Get("/login", h.handleLoginForm)
	r.Post("/login", h.handleLogin)
	r.Get("/signup", h.handleSignupForm)
	r.Post("/signup", h.handleSignup)
	r.Get("/logout", h.handleLogout)

	r.Get("/upload", requireAuth(h.handleUploadForm))
	r.Post("/upload", requireAuth(h.handleUpload))
	r.Post("/like", requireAuth(h.handleLike))
	r.Post("/follow", requireAuth(h.handleFollow))
	r.Post("/comment", requireAuth(h.handleComment))

	r.Get("/ws", h.HandleWS)

	r.Handle("/photos/*", http.StripPrefix("/photos/",
		http.FileServer(http.Dir(h.cfg.Photos.Dir))))

	static, _ := fs.Sub(staticFiles, "static")
	r.Handle("/static/*", http.StripPrefix("/static/",
		http.FileServer(http.FS(static))))

	return r
}
