package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/skybridge-ai/compute-plane/internal/compute"
	"github.com/skybridge-ai/compute-plane/internal/logutil"
	"github.com/skybridge-ai/compute-plane/internal/middleware"
)

type streamEvent struct {
	Type     string `json:"type"` // "line" or "exit"
	Line     string `json:"line,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
}

// StreamCommand handles GET /compute/resources/{id}/stream?command=...
// over WebSocket, delivering remote output line by line and a final exit
// event. Precondition failures close the socket with a policy code before
// any output is sent.
func StreamCommand(w http.ResponseWriter, r *http.Request) {
	command := r.URL.Query().Get("command")
	if command == "" {
		writeError(w, http.StatusBadRequest, "command query parameter is required")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[stream] Failed to accept websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	send := func(ev streamEvent) error {
		data, _ := json.Marshal(ev)
		return conn.Write(ctx, websocket.MessageText, data)
	}

	exitCode, err := Compute.ExecuteStream(ctx, compute.ExecuteRequest{
		ResourceID:     chi.URLParam(r, "id"),
		Command:        command,
		OrganizationID: middleware.OrganizationID(r),
	}, func(line string) {
		if sendErr := send(streamEvent{Type: "line", Line: line}); sendErr != nil {
			log.Printf("[stream] client write failed: %v", sendErr)
		}
	})
	if err != nil {
		switch {
		case errors.Is(err, compute.ErrNotFound):
			conn.Close(4004, "Resource not found")
		case errors.Is(err, compute.ErrAccessDenied):
			conn.Close(4003, "Access denied")
		case errors.Is(err, compute.ErrExpired), errors.Is(err, compute.ErrInvalidState):
			conn.Close(4009, logutil.Truncate(err.Error(), 120))
		default:
			conn.Close(4500, logutil.Truncate(err.Error(), 120))
		}
		return
	}

	if err := send(streamEvent{Type: "exit", ExitCode: exitCode}); err != nil {
		log.Printf("[stream] final write failed: %v", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

