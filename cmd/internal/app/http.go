package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"arcclient/cmd/internal/auth/authority"
	"arcclient/cmd/internal/auth/session"
	"arcclient/cmd/internal/storage"
	"arcclient/cmd/internal/uibridge"
)

type restoreResponse struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
	Path    string `json:"path,omitempty"`
}

type loginRequest struct {
	Token string         `json:"token"`
	User  authority.User `json:"user"`
}

type pathRequest struct {
	Path string `json:"path"`
}

func (a *App) registerHTTP(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", a.handleReady)

	mux.HandleFunc("GET /session", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, uibridge.SnapshotPayload(a.mgr.Snapshot()))
	})
	mux.HandleFunc("POST /session/restore", a.handleRestore)
	mux.HandleFunc("POST /session/login", a.handleLogin)
	mux.HandleFunc("POST /session/logout", a.handleLogout)
	mux.HandleFunc("POST /session/path", a.handlePath)

	mux.Handle("GET /metrics", a.metrics.Handler())
	mux.HandleFunc("/ws", a.ws.HandleWS)
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.cfg.ReadinessRequireSharedStore && a.cfg.StoreDriver == storage.DriverMemory {
		http.Error(w, "shared store not configured", http.StatusServiceUnavailable)
		return
	}

	if a.pool != nil {
		if err := PingDB(r.Context(), a.pool, 2*time.Second); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			a.log.Info("readyz.db.not_ready", "err", err)
			return
		}
	}

	if a.cfg.RestoreOnStart && a.mgr.Loading() {
		http.Error(w, "session restoring", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}

func (a *App) handleRestore(w http.ResponseWriter, r *http.Request) {
	// A dropped client must not cut a restore short and strand the credential.
	res := a.mgr.Restore(context.WithoutCancel(r.Context()))
	status := http.StatusOK
	switch res.Outcome {
	case session.OutcomeSkipped:
		status = http.StatusConflict
	case session.OutcomeCanceled:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, restoreResponse{Outcome: string(res.Outcome), Reason: res.Reason, Path: res.Path})
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, maxJSONBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}
	err := a.mgr.CompleteLogin(r.Context(), authority.LoginResult{User: req.User, Token: req.Token})
	switch {
	case errors.Is(err, session.ErrInvalidLogin):
		writeError(w, http.StatusBadRequest, "invalid_login", "token and user.id are required")
		return
	case err != nil:
		a.log.Error("session.login.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not persist session")
		return
	}
	writeJSON(w, http.StatusOK, uibridge.SnapshotPayload(a.mgr.Snapshot()))
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.mgr.Logout(r.Context()); err != nil {
		a.log.Error("session.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not clear session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handlePath(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decodeJSON(w, r, maxJSONBodyBytes, &req); err != nil || len(req.Path) == 0 || req.Path[0] != '/' {
		writeError(w, http.StatusBadRequest, "bad_path", "path must be absolute")
		return
	}
	if err := a.mgr.TrackPath(r.Context(), req.Path); err != nil {
		a.log.Error("session.path.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not record path")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
