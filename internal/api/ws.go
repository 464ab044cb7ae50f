package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lensfeed/lensfeed/internal/feed"
	"github.com/lensfeed/lensfeed/internal/logutil"
	"github.com/lensfeed/lensfeed/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// envelope is the bidirectional live-feed message frame.
type envelope struct {
	MessageName string          `json:"message_name"`
	Data        json.RawMessage `json:"data"`
}

// feedQueryData is the payload of get_last_photos.
type feedQueryData struct {
	CurrentUser string `json:"current_user"`
	PageOwner   string `json:"page_owner"`
}

// HandleWS upgrades the connection into a live-feed session. The session is
// registered for broadcast on open, answers pull requests from its read
// loop, and is unregistered when the transport closes.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	sess := feed.NewSession(conn, h.cfg.Live.SendBuffer)
	h.registry.Register(sess)
	log := h.log.With(zap.String("session_id", sess.ID()))
	log.Info("live session opened")

	defer func() {
		h.registry.Unregister(sess)
		sess.Close()
		log.Info("live session closed")
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// Client disconnect and transport errors both land here; the
			// deferred unregister keeps the registry free of stale entries.
			log.Debug("ws read ended", zap.Error(err))
			return
		}
		h.dispatch(r.Context(), log, sess, raw)
	}
}

// dispatch routes one inbound frame. message_name is matched exhaustively;
// anything unrecognized gets an error frame back and the session stays
// active.
func (h *Handlers) dispatch(ctx context.Context, log *zap.Logger, sess *feed.Session, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warn("malformed envelope", zap.Error(err))
		h.bus.SendTo(sess, feed.ErrorEvent("invalid JSON"))
		return
	}

	switch env.MessageName {
	case "get_last_photos":
		h.handleGetLastPhotos(ctx, log, sess, env.Data)
	default:
		log.Warn("unknown message", zap.String("message_name", env.MessageName))
		h.bus.SendTo(sess, feed.ErrorEvent(fmt.Sprintf("unknown message_name %q", env.MessageName)))
	}
}

func (h *Handlers) handleGetLastPhotos(ctx context.Context, log *zap.Logger, sess *feed.Session, data json.RawMessage) {
	var q feedQueryData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &q); err != nil {
			h.bus.SendTo(sess, feed.ErrorEvent("invalid get_last_photos data"))
			return
		}
	}

	photos, err := h.store.LastPhotos(ctx, store.FeedQuery{
		PageOwner: q.PageOwner,
		Viewer:    q.CurrentUser,
	})
	if err != nil {
		log.Error("pull query failed",
			logutil.Payload(
				zap.String("page_owner", q.PageOwner),
				zap.String("current_user", q.CurrentUser),
			),
			zap.Error(err),
		)
		h.bus.SendTo(sess, feed.ErrorEvent("feed query failed"))
		return
	}

	// Reply goes to the requesting session only, bypassing the fan-out.
	h.bus.SendTo(sess, feed.Event{Name: feed.EventPhotoList, Data: photos})
}
