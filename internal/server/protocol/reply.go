package protocol

import (
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/chatrelay/internal/common"
	"github.com/dmitrijs2005/chatrelay/internal/server/models"
)

// Error codes sent in error replies.
const (
	CodeAlreadyExists        = "already_exists"
	CodeInvalidCredentials   = "invalid_credentials"
	CodeUnauthenticated      = "unauthenticated"
	CodeEmptyMessage         = "empty_message"
	CodeMessageTooLong       = "message_too_long"
	CodeMalformedEnvelope    = "malformed_envelope"
	CodeInvalidUsername      = "invalid_username"
	CodeInvalidPassword      = "invalid_password"
	CodeAlreadyAuthenticated = "already_authenticated"
	CodeRateLimited          = "rate_limited"
	CodeInternal             = "internal_error"
)

var codes = []struct {
	err  error
	code string
}{
	{common.ErrAlreadyExists, CodeAlreadyExists},
	{common.ErrInvalidCredentials, CodeInvalidCredentials},
	{common.ErrUnauthenticated, CodeUnauthenticated},
	{common.ErrInvalidToken, CodeUnauthenticated},
	{common.ErrTokenExpired, CodeUnauthenticated},
	{common.ErrEmptyMessage, CodeEmptyMessage},
	{common.ErrMessageTooLong, CodeMessageTooLong},
	{common.ErrMalformedEnvelope, CodeMalformedEnvelope},
	{common.ErrInvalidUsername, CodeInvalidUsername},
	{common.ErrInvalidPassword, CodeInvalidPassword},
	{common.ErrAlreadyAuthenticated, CodeAlreadyAuthenticated},
	{common.ErrRateLimited, CodeRateLimited},
}

// CodeFor maps an error to its reply code. Anything unknown, persistence
// failures included, is an internal error.
func CodeFor(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// MessageFor returns the human-readable text sent with an error code. Internal
// errors are not described to clients.
func MessageFor(err error) string {
	code := CodeFor(err)
	if code == CodeInternal {
		return common.ErrInternal.Error()
	}
	for _, c := range codes {
		if c.code == code {
			return c.err.Error()
		}
	}
	return err.Error()
}

// AuthReply answers a successful auth request.
type AuthReply struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	Action   string `json:"action"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Delivery is a broadcast chat message.
type Delivery struct {
	Type      string `json:"type"`
	ID        int64  `json:"id"`
	From      string `json:"from"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// HistoryReply carries messages oldest first.
type HistoryReply struct {
	Type     string     `json:"type"`
	Status   string     `json:"status"`
	Messages []Delivery `json:"messages"`
}

// ErrorReply reports a rejected request. Request names the inbound type
// that failed, when known.
type ErrorReply struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Request string `json:"request,omitempty"`
}

func NewDelivery(m models.Message) Delivery {
	return Delivery{Type: TypeMessage, ID: m.ID, From: m.From, Text: m.Text, Timestamp: m.Timestamp}
}

func NewDeliveries(msgs []models.Message) []Delivery {
	out := make([]Delivery, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewDelivery(m))
	}
	return out
}

func NewErrorReply(err error, request string) ErrorReply {
	return ErrorReply{
		Type:    TypeError,
		Status:  StatusError,
		Code:    CodeFor(err),
		Message: MessageFor(err),
		Request: request,
	}
}

// Encode marshals a reply. Replies are plain structs, so it cannot fail.
func Encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func EncodeAuth(action, username, token string) []byte {
	return Encode(AuthReply{Type: TypeAuth, Status: StatusOK, Action: action, Username: username, Token: token})
}

func EncodeDelivery(m models.Message) []byte {
	return Encode(NewDelivery(m))
}

func EncodeHistory(msgs []models.Message) []byte {
	return Encode(HistoryReply{Type: TypeHistory, Status: StatusOK, Messages: NewDeliveries(msgs)})
}

func EncodeError(err error, request string) []byte {
	return Encode(NewErrorReply(err, request))
}
