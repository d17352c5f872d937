package slots

import (
	"encoding/json"
	"net/http"
	"sync"

	"islebook/models"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins — adjust for production if needed
		return true
	},
}

var (
	subscribers = make(map[string][]*websocket.Conn)
	mu          sync.Mutex
)

// HandleWS subscribes a client to live availability updates for one
// listing. Best-effort: a slow or broken connection is dropped.
func HandleWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	listingID := ps.ByName("listingId")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "WebSocket upgrade failed", http.StatusBadRequest)
		return
	}

	mu.Lock()
	subscribers[listingID] = append(subscribers[listingID], conn)
	mu.Unlock()

	for {
		// This keeps the connection alive until the client disconnects
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}

	// Clean up on disconnect
	mu.Lock()
	conns := subscribers[listingID]
	newList := make([]*websocket.Conn, 0, len(conns))
	for _, c := range conns {
		if c != conn {
			newList = append(newList, c)
		}
	}
	subscribers[listingID] = newList
	mu.Unlock()

	conn.Close()
}

// BroadcastAvailability pushes the slot's current numbers to everyone
// watching its listing.
func BroadcastAvailability(slot *models.Slot) {
	data, err := json.Marshal(map[string]any{
		"type":      "availability",
		"slotId":    slot.ID,
		"date":      slot.Date,
		"startTime": slot.StartTime,
		"available": slot.Available,
		"capacity":  slot.Capacity,
		"status":    slot.Status,
	})
	if err != nil {
		return
	}
	broadcast(slot.ListingID, data)
}

func broadcast(key string, val []byte) {
	mu.Lock()
	defer mu.Unlock()

	conns := subscribers[key]
	newList := conns[:0]

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, val); err == nil {
			newList = append(newList, conn)
		} else {
			conn.Close()
		}
	}

	subscribers[key] = newList
}
