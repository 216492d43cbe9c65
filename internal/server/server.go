// Package server はSlackスラッシュコマンド用のHTTP APIを提供する。
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"sgi/internal/domain"
)

// CommandStore はコマンド処理に必要なストア操作。
type CommandStore interface {
	AddUser(ctx context.Context, slackUsername string, steamID int64) error
	RemoveUser(ctx context.Context, slackUsername string) error
	SetSilenced(ctx context.Context, silenced bool) error
	LoadServiceState(ctx context.Context) (domain.ServiceState, error)
}

// Notifier はテストメッセージ送信用のチャットクライアント。
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Config はAPIハンドラの依存関係。
type Config struct {
	Store    CommandStore
	Notifier Notifier

	// VerificationToken はSlackのスラッシュコマンド検証トークン。
	VerificationToken string
}

type handler struct {
	cfg Config
}

// New はSGIコマンドAPIのHTTPハンドラを返す。
func New(cfg Config) http.Handler {
	h := &handler{cfg: cfg}

	router := chi.NewRouter()
	router.Route("/commands", func(r chi.Router) {
		r.Post("/add-user", h.verified(h.addUser))
		r.Post("/remove-user", h.verified(h.removeUser))
		r.Post("/mute", h.verified(h.mute))
		r.Post("/unmute", h.verified(h.unmute))
	})
	router.Route("/diagnostics", func(r chi.Router) {
		r.Get("/ping", h.ping)
		r.Get("/config", h.serviceConfig)
		r.Get("/test-message", h.testMessage)
	})
	return router
}

// verified はスラッシュコマンドの検証トークンを確認するミドルウェア。
func (h *handler) verified(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.FormValue("token")
		if token == "" {
			badRequest(w, "No token provided.")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.VerificationToken)) != 1 {
			http.Error(w, "Unauthorized.", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (h *handler) addUser(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.FormValue("text"))
	if text == "" {
		badRequest(w, "No Slack username or Steam id provided.")
		return
	}

	parts := strings.Fields(text)
	if len(parts) != 2 {
		badRequest(w, "Two parameters are needed: The Slack username and Steam id of the person to add.")
		return
	}

	steamID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		badRequest(w, "The steam-id parameter did not appear to be a valid number.")
		return
	}

	if err := h.cfg.Store.AddUser(r.Context(), parts[0], steamID); err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			badRequest(w, "That user has already been added.")
			return
		}
		internalError(w, err)
		return
	}

	slog.Info("ユーザー追加", "user", parts[0], "steam_id", steamID)
	ok(w, "Steam user added.")
}

func (h *handler) removeUser(w http.ResponseWriter, r *http.Request) {
	slackUsername := strings.TrimSpace(r.FormValue("text"))
	if slackUsername == "" {
		badRequest(w, "No Slack username provided.")
		return
	}

	if err := h.cfg.Store.RemoveUser(r.Context(), slackUsername); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			badRequest(w, "No such Slack user found.")
			return
		}
		internalError(w, err)
		return
	}

	slog.Info("ユーザー削除", "user", slackUsername)
	ok(w, "Steam user removed.")
}

func (h *handler) mute(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Store.SetSilenced(r.Context(), true); err != nil {
		internalError(w, err)
		return
	}
	slog.Info("通知をミュート")
	ok(w, "Muted.")
}

func (h *handler) unmute(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Store.SetSilenced(r.Context(), false); err != nil {
		internalError(w, err)
		return
	}
	slog.Info("ミュートを解除")
	ok(w, "Un-muted.")
}

// ping はサービスの死活確認用。
func (h *handler) ping(w http.ResponseWriter, _ *http.Request) {
	ok(w, "Pong: "+time.Now().Format(time.RFC3339))
}

// serviceConfig はサービス設定レコードを返す。データベース初期化の確認用。
func (h *handler) serviceConfig(w http.ResponseWriter, r *http.Request) {
	state, err := h.cfg.Store.LoadServiceState(r.Context())
	if err != nil {
		internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"silenced": state.Silenced,
		"lastPoll": state.LastPoll,
	})
}

func (h *handler) testMessage(w http.ResponseWriter, r *http.Request) {
	err := h.cfg.Notifier.Send(r.Context(), "This is a test announcement. Do not be alarmed.")
	if err != nil {
		internalError(w, err)
		return
	}
	ok(w, "Test message sent.")
}

func ok(w http.ResponseWriter, msg string) {
	fmt.Fprintln(w, msg)
}

func badRequest(w http.ResponseWriter, msg string) {
	http.Error(w, msg, http.StatusBadRequest)
}

func internalError(w http.ResponseWriter, err error) {
	slog.Error("コマンド処理失敗", "error", err)
	http.Error(w, "Internal server error.", http.StatusInternalServerError)
}
