package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/httputils"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/terminalbroker"
)

// TerminalController creates and attaches TerminalSessions over
// WebSocket.
type TerminalController struct {
	broker   *terminalbroker.Broker
	logger   core.Logger
	baseCtx  context.Context
	upgrader websocket.Upgrader
}

// NewTerminalController builds a TerminalController. baseCtx is the
// process-lifetime context: the exec channel opened on session create
// must outlive the create request itself (net/http cancels r.Context()
// the moment the handler returns, which would kill the stream before
// the client ever attaches).
func NewTerminalController(baseCtx context.Context, broker *terminalbroker.Broker, logger core.Logger) *TerminalController {
	return &TerminalController{
		broker:  broker,
		logger:  logger,
		baseCtx: baseCtx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Terminal sessions are reached through the same
			// reverse-proxy origin as the REST API; cross-origin exec
			// access is an authentication-layer concern external to
			// this component.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type createSessionRequest struct {
	Shell string `json:"shell"`
}

type createSessionResponse struct {
	SessionID    string `json:"session_id"`
	WebSocketURL string `json:"websocket_url"`
}

// CreateSessionHandler handles POST /jobs/{name}/terminal: opens an exec
// channel into the Deployment's primary pod and returns the session id
// plus the WebSocket URL to attach to.
func (c *TerminalController) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	deploymentID := mux.Vars(r)["name"]
	var req createSessionRequest
	if r.ContentLength != 0 {
		if !decodeAndValidate(w, r, &req) {
			return
		}
	}
	session, err := c.broker.Create(c.baseCtx, deploymentID, req.Shell)
	if err != nil {
		httputils.WriteError(w, err)
		return
	}
	httputils.WriteJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:    session.ID,
		WebSocketURL: "/terminal/" + session.ID,
	})
}

// AttachHandler handles `WS /terminal/{id}`: upgrades the connection and
// bridges it to the session's exec channel until either side closes.
func (c *TerminalController) AttachHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if _, ok := c.broker.Get(sessionID); !ok {
		httputils.WriteError(w, core.NewError(core.KindNotFound, "terminal_session_not_found", "terminal session not found"))
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Warn("terminal: websocket upgrade failed", core.ErrorLogField("error", err))
		return
	}
	defer conn.Close()

	fromClient := make(chan terminalbroker.ClientMessage)
	toClient := make(chan terminalbroker.ServerMessage, 64)

	go c.readClientMessages(conn, fromClient)
	go c.writeServerMessages(conn, toClient)

	if err := c.broker.Attach(r.Context(), sessionID, fromClient, toClient); err != nil {
		c.logger.Warn("terminal: attach failed",
			core.StringField("session_id", sessionID),
			core.ErrorLogField("error", err),
		)
	}
}

type wireClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
}

type wireServerMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

func (c *TerminalController) readClientMessages(conn *websocket.Conn, out chan<- terminalbroker.ClientMessage) {
	defer close(out)
	for {
		var msg wireClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		out <- terminalbroker.ClientMessage{
			Type: msg.Type,
			Data: []byte(msg.Data),
			Rows: msg.Rows,
			Cols: msg.Cols,
		}
	}
}

func (c *TerminalController) writeServerMessages(conn *websocket.Conn, in <-chan terminalbroker.ServerMessage) {
	for msg := range in {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(wireServerMessage{Type: msg.Type, Data: string(msg.Data)}); err != nil {
			return
		}
		if msg.Type == "closed" {
			code := msg.Code
			if code == 0 {
				code = websocket.CloseNormalClosure
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, string(msg.Data)))
			return
		}
	}
}
