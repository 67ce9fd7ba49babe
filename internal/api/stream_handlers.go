package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Sent by clients over the websocket.
type wsCommand struct {
	Command string `json:"command"`
}

func (app *App) EventStreamHandler(w http.ResponseWriter, r *http.Request) {
	updates, unsubscribe, err := app.Sessions.Subscribe(chi.URLParam(r, "id"))
	if err != nil {
		app.writeSessionError(w, err)
		return
	}
	defer unsubscribe()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	clientGone := r.Context().Done()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}

			data, err := json.Marshal(update.Data)
			if err != nil {
				log.Printf("[API] Error marshaling update: %v", err)
				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", update.Type, string(data))
			flusher.Flush()

		case <-clientGone:
			return
		}
	}
}

// WebSocketHandler streams updates as JSON text frames. Clients may send
// {"command":"start"} or {"command":"stop"}.
func (app *App) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	updates, unsubscribe, err := app.Sessions.Subscribe(id)
	if err != nil {
		app.writeSessionError(w, err)
		return
	}
	defer unsubscribe()

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[API] Websocket upgrade failed for session %s: %v", id, err)
		return
	}
	defer conn.Close()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			var cmd wsCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}

			ctx := r.Context()
			var err error
			switch cmd.Command {
			case "start":
				_, err = app.Sessions.Start(ctx, id)
			case "stop":
				_, err = app.Sessions.Stop(ctx, id)
			default:
				log.Printf("[API] Unknown websocket command %q for session %s", cmd.Command, id)
				continue
			}
			if err != nil {
				log.Printf("[API] Websocket command %q failed for session %s: %v", cmd.Command, id, err)
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}

			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(update); err != nil {
				return
			}

		case <-readerDone:
			return
		}
	}
}
