package rdx

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"islebook/models"

	"github.com/redis/go-redis/v9"
)

var Conn *redis.Client

func init() {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	Conn = redis.NewClient(&redis.Options{Addr: addr})
}

const availTTL = 30 * time.Second

func availKey(slotID string) string {
	return "slot:" + slotID + ":availability"
}

// CacheSlotAvailability stores a short-lived availability snapshot for
// the read path. The write path never consults this; it is refreshed or
// dropped whenever the ledger commits a change.
func CacheSlotAvailability(ctx context.Context, slot *models.Slot) {
	data, err := json.Marshal(map[string]any{
		"available": slot.Available,
		"capacity":  slot.Capacity,
		"status":    slot.Status,
	})
	if err != nil {
		return
	}
	if err := Conn.Set(ctx, availKey(slot.ID), data, availTTL).Err(); err != nil {
		log.Println("Redis availability cache set error:", err)
	}
}

// GetCachedAvailability returns the cached snapshot, or nil on miss.
func GetCachedAvailability(ctx context.Context, slotID string) map[string]any {
	data, err := Conn.Get(ctx, availKey(slotID)).Result()
	if err != nil {
		return nil
	}
	var snap map[string]any
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil
	}
	return snap
}

// DropSlotAvailability invalidates the snapshot after a ledger write.
func DropSlotAvailability(ctx context.Context, slotID string) {
	if err := Conn.Del(ctx, availKey(slotID)).Err(); err != nil && err != redis.Nil {
		log.Println("Redis availability cache del error:", err)
	}
}
