package api

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lensfeed/lensfeed/internal/config"
	"github.com/lensfeed/lensfeed/internal/feed"
	"github.com/lensfeed/lensfeed/internal/store"
)

// Storage is the slice of the photo store the HTTP and live-feed handlers
// consume. *store.Store implements it.
type Storage interface {
	CreateUser(ctx context.Context, username, passwordHash string) (int64, error)
	UserByName(ctx context.Context, username string) (store.User, error)
	CreatePhoto(ctx context.Context, username, filename, photoURL string) (int64, error)
	LastPhotos(ctx context.Context, q store.FeedQuery) ([]store.PhotoSummary, error)
	ToggleLike(ctx context.Context, username string, photoID int64) (bool, error)
	ToggleFollow(ctx context.Context, follower, followee string) (bool, error)
	AddComment(ctx context.Context, username string, photoID int64, text string) (int64, error)
	ProfileStats(ctx context.Context, username string) (store.ProfileStats, error)
}

// Handlers holds shared resources injected from app.Server.
type Handlers struct {
	store    Storage
	registry *feed.Registry
	bus      *feed.Bus
	cfg      *config.Config
	log      *zap.Logger
}

func NewHandlers(st Storage, reg *feed.Registry, bus *feed.Bus, cfg *config.Config, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.L()
	}
	return &Handlers{store: st, registry: reg, bus: bus, cfg: cfg, log: log}
}

func (h *Handlers) handleHome(w http.ResponseWriter, r *http.Request) {
	viewer := CurrentUser(r.Context())
	photos, err := h.store.LastPhotos(r.Context(), store.FeedQuery{Viewer: viewer})
	if err != nil {
		h.log.Error("home feed query failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.render(w, "photos.html", pageData{CurrentUser: viewer, Photos: photos})
}

func (h *Handlers) handleUserHome(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "username")
	if _, err := h.store.UserByName(r.Context(), owner); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "no such user", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	viewer := CurrentUser(r.Context())
	photos, err := h.store.LastPhotos(r.Context(), store.FeedQuery{PageOwner: owner, Viewer: viewer})
	if err != nil {
		h.log.Error("user feed query failed", zap.String("page_owner", owner), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	stats, err := h.store.ProfileStats(r.Context(), owner)
	if err != nil {
		h.log.Error("profile stats failed", zap.String("page_owner", owner), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.render(w, "photos.html", pageData{
		CurrentUser: viewer,
		PageOwner:   owner,
		Photos:      photos,
		Stats:       stats,
	})
}

func (h *Handlers) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, "login.html", pageData{})
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	u, err := h.store.UserByName(r.Context(), username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err != nil || !CheckPassword(u.PasswordHash, password) {
		h.render(w, "login.html", pageData{Error: "wrong username or password"})
		return
	}

	if err := h.setSessionCookie(w, username); err != nil {
		h.log.Error("session cookie failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/user/"+username, http.StatusFound)
}

func (h *Handlers) handleSignupForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, "signup.html", pageData{})
}

func (h *Handlers) handleSignup(w http.ResponseWriter, r *http.Request) {
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		h.render(w, "signup.html", pageData{Error: "please specify username and password"})
		return
	}

	hash, err := HashPassword(password)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if _, err := h.store.CreateUser(r.Context(), username, hash); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			h.render(w, "signup.html", pageData{Error: "username already exists"})
			return
		}
		h.log.Error("signup failed", zap.String("username", username), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.setSessionCookie(w, username); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/user/"+username, http.StatusFound)
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handlers) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, "upload.html", pageData{CurrentUser: CurrentUser(r.Context())})
}

// handleUpload stores the file under the md5 of its content, so
// byte-identical uploads share one file on disk, then inserts a fresh photo
// row and publishes new_photo.
func (h *Handlers) handleUpload(w http.ResponseWriter, r *http.Request) {
	username := CurrentUser(r.Context())

	file, header, err := r.FormFile("photo_file")
	if err != nil {
		h.render(w, "upload.html", pageData{CurrentUser: username, Error: "please choose a file"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	sum := md5.Sum(content)
	filename := hex.EncodeToString(sum[:]) + filepath.Ext(header.Filename)
	path := filepath.Join(h.cfg.Photos.Dir, filename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, content, 0o644); err != nil {
			h.log.Error("photo write failed", zap.String("path", path), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	photoURL := "/photos/" + filename
	photoID, err := h.store.CreatePhoto(r.Context(), username, filename, photoURL)
	if err != nil {
		h.log.Error("photo insert failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.bus.Publish(feed.Event{Name: feed.EventNewPhoto, Data: store.PhotoSummary{
		ID:       photoID,
		PhotoURL: photoURL,
		Username: username,
	}})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handlers) handleLike(w http.ResponseWriter, r *http.Request) {
	username := CurrentUser(r.Context())

	photoID, err := strconv.ParseInt(r.PostFormValue("photo_id"), 10, 64)
	if err != nil {
		http.Error(w, "bad photo_id", http.StatusBadRequest)
		return
	}
	// The username form field names the event's actor; it must match the
	// authenticated user.
	if actor := r.PostFormValue("username"); actor != "" && actor != username {
		http.Error(w, "username mismatch", http.StatusForbidden)
		return
	}

	liked, err := h.store.ToggleLike(r.Context(), username, photoID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "no such photo", http.StatusNotFound)
			return
		}
		h.log.Error("like toggle failed",
			zap.String("username", username),
			zap.Int64("photo_id", photoID),
			zap.Error(err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.bus.Publish(feed.LikeEvent(photoID, username, liked))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleFollow(w http.ResponseWriter, r *http.Request) {
	follower := CurrentUser(r.Context())
	followee := r.PostFormValue("username")

	if _, err := h.store.ToggleFollow(r.Context(), follower, followee); err != nil {
		switch {
		case errors.Is(err, store.ErrSelfFollow):
			http.Error(w, "cannot follow yourself", http.StatusBadRequest)
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "no such user", http.StatusNotFound)
		default:
			h.log.Error("follow toggle failed", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleComment(w http.ResponseWriter, r *http.Request) {
	username := CurrentUser(r.Context())

	photoID, err := strconv.ParseInt(r.PostFormValue("photo_id"), 10, 64)
	if err != nil {
		http.Error(w, "bad photo_id", http.StatusBadRequest)
		return
	}
	text := r.PostFormValue("text")
	if text == "" {
		http.Error(w, "empty comment", http.StatusBadRequest)
		return
	}

	if _, err := h.store.AddComment(r.Context(), username, photoID, text); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "no such photo", http.StatusNotFound)
			return
		}
		h.log.Error("comment failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
