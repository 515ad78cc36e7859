package orders

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewOrderNumber generates a human-readable order number: date stamp plus
// a 6-hex-digit random suffix, e.g. ORD-20260830-1a2b3c. Collisions are
// possible; the orders table's unique constraint converts one into an
// insert failure the checkout loop retries.
func NewOrderNumber(t time.Time) string {
	var suffix [3]byte
	_, _ = rand.Read(suffix[:])
	return fmt.Sprintf("ORD-%s-%s", t.Format("20060102"), hex.EncodeToString(suffix[:]))
}
