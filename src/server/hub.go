package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"option-observer/src/models"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets is the main hub loop.
func (s *APIServer) handleWebsockets() {
	for {
		select {
		case client := <-s.register:
			s.clients[client] = struct{}{}
			// Send initial state on connect. filter detaches the envelope
			// from the cached state, so the write pump can serialize it
			// while ingestion keeps merging updates.
			s.stateMutex.RLock()
			initial := client.filter(s.latestState)
			s.stateMutex.RUnlock()
			initial.Type = "INITIAL"
			client.send <- initial

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}

		case message := <-s.broadcast:
			for client := range s.clients {
				select {
				case client.send <- client.filter(message):
					// Message sent successfully
				default:
					// Client too slow, disconnect to prevent hub blocking
					delete(s.clients, client)
					close(client.send)
				}
			}

		case <-s.stop:
			for client := range s.clients {
				delete(s.clients, client)
				close(client.send)
			}
			return
		}
	}
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// UpdateAllDatas merges a normalized batch into the cached full state served
// to newly connected clients.
func (s *APIServer) UpdateAllDatas(data *models.MLatestData) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()

	for token, snap := range data.Snapshots {
		s.latestState.Snapshots[token] = snap
	}
	for sym, px := range data.Spots {
		s.latestState.Spots[sym] = px
	}
	s.latestState.Timestamp = data.Timestamp
	s.latestState.Metrics = data.Metrics
	s.latestState.Type = "UPDATE"
}

// -----------------------------------------------------------------------------

// Broadcast queues an update batch for all connected clients. A full queue
// drops the batch rather than stalling the ingestion loop.
func (s *APIServer) Broadcast(data *models.MLatestData) {
	select {
	case s.broadcast <- data:
	default:
		s.Logger.Warning("Broadcast queue full, dropping update batch")
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *APIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		// Buffered channel to prevent blocking the hub loop
		send: make(chan *models.MLatestData, 256),
	}

	select {
	case s.register <- client:
	case <-s.stop:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// HandleClientMessage processes subscribe commands: the client narrows its
// stream to a token set or one underlying and immediately receives a filtered
// initial state.
func (s *APIServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	if cmd.Command != "subscribe" {
		return
	}

	client.setFilter(cmd.Tokens, cmd.Underlying)

	s.stateMutex.RLock()
	response := client.filter(s.latestState)
	response.Type = "INITIAL"
	s.stateMutex.RUnlock()

	select {
	case client.send <- response:
	default:
		// Client buffer full; the hub loop eviction will catch it.
	}
}
