// Package protocol defines the JSON envelopes exchanged with clients.
//
// Inbound frames decode into one of a closed set of requests (AuthRequest,
// ChatRequest, HistoryRequest). Anything else, including unknown fields or
// fields that do not belong to the variant, is rejected with
// common.ErrMalformedEnvelope.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/dmitrijs2005/chatrelay/internal/common"
)

// Envelope types.
const (
	TypeAuth    = "auth"
	TypeMessage = "message"
	TypeMsg     = "msg" // accepted alias of TypeMessage
	TypeHistory = "history"
	TypeError   = "error"
)

// Auth actions.
const (
	ActionRegister = "register"
	ActionLogin    = "login"
	ActionResume   = "resume"
)

// Reply statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Request is an inbound envelope after validation.
type Request interface {
	requestType() string
}

type AuthRequest struct {
	Action   string
	Username string
	Password string
	Token    string
}

type ChatRequest struct {
	Text string
}

type HistoryRequest struct {
	After int64
}

func (AuthRequest) requestType() string    { return TypeAuth }
func (ChatRequest) requestType() string    { return TypeMessage }
func (HistoryRequest) requestType() string { return TypeHistory }

// TypeOf returns the envelope type of req.
func TypeOf(req Request) string { return req.requestType() }

// PeekType returns the envelope type named by raw without validating the
// rest of the frame, so replies to rejected frames can name the request they
// answer. It returns "" when raw carries no known type.
func PeekType(raw []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	switch head.Type {
	case TypeAuth, TypeHistory:
		return head.Type
	case TypeMessage, TypeMsg:
		return TypeMessage
	default:
		return ""
	}
}

// inbound mirrors the wire shape; pointers tell absent fields from empty ones.
type inbound struct {
	Type     *string `json:"type"`
	Action   *string `json:"action"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	Token    *string `json:"token"`
	Text     *string `json:"text"`
	After    *int64  `json:"after"`
}

// Decode parses and validates one inbound frame.
func Decode(raw []byte) (Request, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var in inbound
	if err := dec.Decode(&in); err != nil {
		return nil, common.ErrMalformedEnvelope
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, common.ErrMalformedEnvelope
	}
	if in.Type == nil {
		return nil, common.ErrMalformedEnvelope
	}

	switch *in.Type {
	case TypeAuth:
		return decodeAuth(&in)
	case TypeMessage, TypeMsg:
		if in.Text == nil || !absent(in.Action, in.Username, in.Password, in.Token) || in.After != nil {
			return nil, common.ErrMalformedEnvelope
		}
		return ChatRequest{Text: *in.Text}, nil
	case TypeHistory:
		if !absent(in.Action, in.Username, in.Password, in.Token, in.Text) {
			return nil, common.ErrMalformedEnvelope
		}
		req := HistoryRequest{}
		if in.After != nil {
			req.After = *in.After
		}
		return req, nil
	default:
		return nil, common.ErrMalformedEnvelope
	}
}

func decodeAuth(in *inbound) (Request, error) {
	if in.Action == nil || in.Text != nil || in.After != nil {
		return nil, common.ErrMalformedEnvelope
	}

	switch *in.Action {
	case ActionRegister, ActionLogin:
		if in.Username == nil || in.Password == nil || in.Token != nil {
			return nil, common.ErrMalformedEnvelope
		}
		return AuthRequest{Action: *in.Action, Username: *in.Username, Password: *in.Password}, nil
	case ActionResume:
		if in.Token == nil || !absent(in.Username, in.Password) {
			return nil, common.ErrMalformedEnvelope
		}
		return AuthRequest{Action: ActionResume, Token: *in.Token}, nil
	default:
		return nil, common.ErrMalformedEnvelope
	}
}

func absent(fields ...*string) bool {
	for _, f := range fields {
		if f != nil {
			return false
		}
	}
	return true
}
