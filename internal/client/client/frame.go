package client

// Frame is any frame the server sends. Only the fields of its Type are set.
type Frame struct {
	Type   string `json:"type"`
	Status string `json:"status"`

	Action   string `json:"action"`
	Username string `json:"username"`
	Token    string `json:"token"`

	ID        int64  `json:"id"`
	From      string `json:"from"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`

	Messages []Frame `json:"messages"`

	Code    string `json:"code"`
	Message string `json:"message"`
	Request string `json:"request"`
}

func (f Frame) isAuthReply() bool {
	return f.Type == "auth" || (f.Type == "error" && f.Request == "auth")
}

func (f Frame) err() error {
	if f.Type != "error" {
		return nil
	}
	return &ServerError{Code: f.Code, Message: f.Message}
}
