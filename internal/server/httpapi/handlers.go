// Package httpapi is the HTTP surface of the relay: a polling API for
// clients that do not hold a WebSocket open, the health probe and the
// WebSocket upgrade route.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/chatrelay/internal/common"
	"github.com/dmitrijs2005/chatrelay/internal/logging"
	"github.com/dmitrijs2005/chatrelay/internal/server/protocol"
	"github.com/dmitrijs2005/chatrelay/internal/server/relay"
)

// maxBodySize bounds request bodies on the polling API.
const maxBodySize = 64 << 10

type handlers struct {
	engine *relay.Engine
	logger logging.Logger
}

type authRequest struct {
	Action   string `json:"action"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Status   string `json:"status"`
	Action   string `json:"action"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

type sendRequest struct {
	Text string `json:"text"`
}

type sendResponse struct {
	Status  string            `json:"status"`
	Message protocol.Delivery `json:"message"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

func statusFor(err error) int {
	switch protocol.CodeFor(err) {
	case protocol.CodeInvalidCredentials, protocol.CodeUnauthenticated:
		return http.StatusUnauthorized
	case protocol.CodeAlreadyExists, protocol.CodeAlreadyAuthenticated:
		return http.StatusConflict
	case protocol.CodeRateLimited:
		return http.StatusTooManyRequests
	case protocol.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(protocol.Encode(v))
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error, request string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, protocol.NewErrorReply(err, request))
}

// decodeBody fills v from a JSON body with the same strictness as the
// WebSocket envelope: unknown fields and trailing data are malformed. It
// reports false for an empty body, in which case callers read the query
// parameters instead.
func decodeBody(r *http.Request, v any) (bool, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil || len(body) > maxBodySize {
		return false, common.ErrMalformedEnvelope
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return false, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return true, common.ErrMalformedEnvelope
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return true, common.ErrMalformedEnvelope
	}
	return true, nil
}

// sessionToken reads the token from the "token" header or a bearer
// Authorization header.
func sessionToken(r *http.Request) string {
	if t := r.Header.Get(common.SessionTokenHeaderName); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// authenticated resolves the request's session or answers 401.
func (h *handlers) authenticated(w http.ResponseWriter, r *http.Request, request string) (string, string, bool) {
	token := sessionToken(r)
	if token == "" {
		h.writeError(w, r, common.ErrUnauthenticated, request)
		return "", "", false
	}
	username, ok := h.engine.Resolve(r.Context(), token)
	if !ok {
		h.writeError(w, r, common.ErrUnauthenticated, request)
		return "", "", false
	}
	return username, token, true
}

func (h *handlers) auth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	hasBody, err := decodeBody(r, &req)
	if err != nil {
		h.writeError(w, r, err, protocol.TypeAuth)
		return
	}
	if !hasBody {
		q := r.URL.Query()
		req = authRequest{Action: q.Get("action"), Username: q.Get("username"), Password: q.Get("password")}
	}

	username, token, err := h.engine.Authenticate(r.Context(), req.Action, req.Username, req.Password)
	if err != nil {
		h.logger.Info(r.Context(), "authentication failed", "action", req.Action, "code", protocol.CodeFor(err))
		h.writeError(w, r, err, protocol.TypeAuth)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Status:   protocol.StatusOK,
		Action:   req.Action,
		Username: username,
		Token:    token,
	})
}

func (h *handlers) send(w http.ResponseWriter, r *http.Request) {
	username, _, ok := h.authenticated(w, r, protocol.TypeMessage)
	if !ok {
		return
	}

	var req sendRequest
	hasBody, err := decodeBody(r, &req)
	if err != nil {
		h.writeError(w, r, err, protocol.TypeMessage)
		return
	}
	if !hasBody {
		req.Text = r.URL.Query().Get("text")
	}

	msg, err := h.engine.Post(r.Context(), username, req.Text)
	if err != nil {
		h.writeError(w, r, err, protocol.TypeMessage)
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{Status: protocol.StatusOK, Message: protocol.NewDelivery(msg)})
}

func (h *handlers) messages(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.authenticated(w, r, protocol.TypeHistory); !ok {
		return
	}

	var after int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			h.writeError(w, r, common.ErrMalformedEnvelope, protocol.TypeHistory)
			return
		}
		after = n
	}

	msgs := h.engine.History(r.Context(), after)
	writeJSON(w, http.StatusOK, protocol.HistoryReply{
		Type:     protocol.TypeHistory,
		Status:   protocol.StatusOK,
		Messages: protocol.NewDeliveries(msgs),
	})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	_, token, ok := h.authenticated(w, r, "logout")
	if !ok {
		return
	}
	if err := h.engine.Logout(r.Context(), token); err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			err = common.ErrUnauthenticated
		}
		h.writeError(w, r, err, "logout")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: protocol.StatusOK})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: protocol.StatusOK, Connections: h.engine.Connections()})
}
