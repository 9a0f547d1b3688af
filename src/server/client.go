package server

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"option-observer/src/models"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024 // 1MB for larger JSON messages
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

type Client struct {
	hub  *APIServer
	conn *websocket.Conn
	send chan *models.MLatestData

	// Subscription filter, set by subscribe commands.
	filterMu   sync.RWMutex
	tokens     map[uint32]bool
	underlying string
}

// -----------------------------------------------------------------------------

func (c *Client) setFilter(tokens []uint32, underlying string) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()

	c.underlying = strings.ToUpper(underlying)
	if len(tokens) == 0 {
		c.tokens = nil
		return
	}
	c.tokens = make(map[uint32]bool, len(tokens))
	for _, t := range tokens {
		c.tokens[t] = true
	}
}

// -----------------------------------------------------------------------------

// filter returns the envelope narrowed to the client's subscription. The
// returned envelope is always a fresh struct with its own maps: the source
// may be the hub's cached state, which the ingestion loop mutates in place
// under stateMutex, so a shared map would be serialized without that lock.
func (c *Client) filter(data *models.MLatestData) *models.MLatestData {
	c.filterMu.RLock()
	tokens := c.tokens
	underlying := c.underlying
	c.filterMu.RUnlock()

	out := *data

	snaps := make(map[uint32]models.MInstrumentSnapshot, len(data.Snapshots))
	for token, snap := range data.Snapshots {
		if tokens != nil && !tokens[token] {
			continue
		}
		if underlying != "" && snap.Underlying != underlying {
			continue
		}
		snaps[token] = snap
	}
	out.Snapshots = snaps

	spots := make(map[string]float64, len(data.Spots))
	for sym, px := range data.Spots {
		if underlying != "" && sym != underlying {
			continue
		}
		spots[sym] = px
	}
	out.Spots = spots

	return &out
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Acts as a watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
		c.hub.Logger.Info("Client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Info("WebSocket error: %v", err)
			}
			break
		}
		c.hub.HandleClientMessage(c, message)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.Logger.Info("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
