package websocket

import (
	"net/http"
	"sync"

	"leilao/internal/domain"
	"leilao/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades watch connections on /ws/auctions/{auctionID}. The socket
// is watch-only: bids go through the REST API, the socket only streams
// accepted bids and lifecycle changes.
type Handler struct {
	auctions    domain.AuctionRepository
	connManager domain.ConnectionManager
	log         logger.Logger
}

func NewHandler(auctions domain.AuctionRepository, connManager domain.ConnectionManager, log logger.Logger) *Handler {
	return &Handler{
		auctions:    auctions,
		connManager: connManager,
		log:         log,
	}
}

func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["auctionID"]

	auction, err := h.auctions.GetAuction(r.Context(), auctionID)
	if err != nil {
		h.log.Error("Failed to find auction for watch", "auction_id", auctionID, "error", err)
		http.Error(w, "auction not found", http.StatusNotFound)
		return
	}

	if auction.Status.Terminal() {
		http.Error(w, "auction has already ended", http.StatusForbidden)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	wsConn := newConnection(conn, userID, auctionID)
	if err := h.connManager.RegisterConnection(userID, auctionID, wsConn); err != nil {
		h.log.Error("Failed to register connection", "error", err)
		conn.Close()
		return
	}

	go h.readLoop(wsConn)
}

// readLoop drains incoming frames so pings and close frames are processed;
// anything else from the client is ignored.
func (h *Handler) readLoop(conn *Connection) {
	defer func() {
		h.connManager.UnregisterConnection(conn.UserID(), conn.AuctionID())
		conn.Close()
	}()

	for {
		var msg map[string]interface{}
		if err := conn.conn.ReadJSON(&msg); err != nil {
			return
		}

		if msgType, ok := msg["type"].(string); ok && msgType == "ping" {
			conn.Send(map[string]string{"type": "pong"})
		}
	}
}

type Connection struct {
	conn      *websocket.Conn
	userID    string
	auctionID string
	writeMu   sync.Mutex
}

func newConnection(conn *websocket.Conn, userID, auctionID string) *Connection {
	return &Connection{
		conn:      conn,
		userID:    userID,
		auctionID: auctionID,
	}
}

func (c *Connection) Send(message interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// Broadcasts arrive pre-encoded; everything else is marshalled here.
	if payload, ok := message.([]byte); ok {
		return c.conn.WriteMessage(websocket.TextMessage, payload)
	}
	return c.conn.WriteJSON(message)
}

func (c *Connection) Close() error {
	return c.conn.Close()
}

func (c *Connection) UserID() string {
	return c.userID
}

func (c *Connection) AuctionID() string {
	return c.auctionID
}
