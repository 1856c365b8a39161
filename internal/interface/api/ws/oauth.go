package ws

import (
	"fmt"
	"net/http"
	"strconv"

	"stageLink/internal/domain"
	"stageLink/internal/usecase/relay"
)

func (s *Server) handleTwitchAuth(w http.ResponseWriter, r *http.Request) {
	state := r.PathValue("state")
	http.Redirect(w, r, s.twitch.AuthorizeURL(state), http.StatusFound)
}

func (s *Server) handleStreamlabsAuth(w http.ResponseWriter, r *http.Request) {
	state := r.PathValue("state")
	http.Redirect(w, r, s.sl.AuthorizeURL(state), http.StatusFound)
}

// handleTwitchCallback cierra el flujo OAuth de Twitch: valida los
// parámetros, canjea el code, persiste el token y se lo inyecta al
// cliente que esté esperando bajo ese state.
func (s *Server) handleTwitchCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		description := q.Get("error_description")
		if description == "" {
			description = "No description provided"
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Twitch returned an error: %s: %s", errParam, description))
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing code parameter")
		return
	}
	state := q.Get("state")
	if state == "" {
		writeError(w, http.StatusBadRequest, "Missing state parameter")
		return
	}
	scope := q.Get("scope")
	if scope == "" {
		writeError(w, http.StatusBadRequest, "Missing scope parameter")
		return
	}
	if scope != s.cfg.TwitchScopes {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid scopes: expected '%s', got '%s'", s.cfg.TwitchScopes, scope))
		return
	}

	ctx := r.Context()

	access, refresh, err := s.twitch.ExchangeCode(ctx, code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Twitch Token Error: %s", err))
		return
	}

	token, err := s.twitch.RefreshOrValidate(ctx, access, refresh)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Twitch Validation Error: %s", err))
		return
	}

	userID, err := strconv.ParseInt(token.UserID, 10, 64)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Invalid user ID from Twitch")
		return
	}

	if err := s.store.InsertTwitchUser(ctx, userID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %s", err))
		return
	}

	// El state normalmente ya existe porque el cliente pidió el código
	// por WebSocket; esto cubre URLs de autorización armadas a mano.
	if err := s.store.InsertActiveKey(ctx, state); err != nil {
		s.log.Debug("ws: failed to insert active key", "error", err)
	}

	if err := s.store.UpsertTwitchKey(ctx, domain.StoredKey{
		Access:  token.Access,
		Refresh: token.Refresh,
		UserID:  userID,
		State:   state,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %s", err))
		return
	}

	if cctx := s.relay.Registry().ContextFor(state); cctx != nil {
		cctx.SetTwitch(token)
		if err := s.broadcastConnect(state, cctx); err != nil {
			s.log.Debug("ws: failed to send twitch connect message", "error", err)
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to send Twitch connect message: %s", err))
			return
		}
	}

	writeHTML(w, "Twitch authentication successful! You can close this tab.")
}

// handleStreamlabsCallback es el par de Streamlabs. No hay chequeo de
// scopes: Streamlabs no los devuelve en el callback.
func (s *Server) handleStreamlabsCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		description := q.Get("error_description")
		if description == "" {
			description = "No description provided"
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Streamlabs returned an error: %s: %s", errParam, description))
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing code parameter")
		return
	}
	state := q.Get("state")
	if state == "" {
		writeError(w, http.StatusBadRequest, "Missing state parameter")
		return
	}

	ctx := r.Context()

	access, refresh, err := s.sl.ExchangeCode(ctx, code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Streamlabs Authorization Code Error: %s", err))
		return
	}

	token, err := s.sl.RefreshOrValidate(ctx, access, refresh)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Streamlabs Validation Error: %s", err))
		return
	}

	if err := s.store.InsertStreamlabsUser(ctx, token.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %s", err))
		return
	}

	if err := s.store.InsertActiveKey(ctx, state); err != nil {
		s.log.Debug("ws: failed to insert active key", "error", err)
	}

	if err := s.store.UpsertStreamlabsKey(ctx, domain.StoredKey{
		Access:  token.Access,
		Refresh: token.Refresh,
		UserID:  token.UserID,
		State:   state,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %s", err))
		return
	}

	if cctx := s.relay.Registry().ContextFor(state); cctx != nil {
		cctx.SetStreamlabs(token)
		if err := s.broadcastConnect(state, cctx); err != nil {
			s.log.Debug("ws: failed to send streamlabs connect message", "error", err)
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to send Streamlabs connect message: %s", err))
			return
		}
	}

	writeHTML(w, "Streamlabs authentication successful! You can close this tab.")
}

func (s *Server) broadcastConnect(state string, cctx *relay.ClientContext) error {
	msg, err := relay.ConnectMessage(cctx)
	if err != nil {
		return err
	}
	return s.relay.Registry().Broadcast(state, msg)
}
