package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/chatrelay/internal/logging"
	"github.com/dmitrijs2005/chatrelay/internal/server/relay"
)

// NewRouter returns the relay's HTTP routes. ws serves the WebSocket
// upgrade on /ws.
func NewRouter(engine *relay.Engine, ws http.Handler, logger logging.Logger) *http.ServeMux {
	h := &handlers{engine: engine, logger: logger.With("module", "httpapi")}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth", h.auth)
	mux.HandleFunc("POST /send", h.send)
	mux.HandleFunc("GET /messages", h.messages)
	mux.HandleFunc("POST /logout", h.logout)
	mux.HandleFunc("GET /health", h.health)
	if ws != nil {
		mux.Handle("/ws", ws)
	}
	return mux
}
