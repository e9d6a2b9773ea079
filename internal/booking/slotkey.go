package booking

import (
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// SlotKey identifies the (salon, interval) triple serialized by the slot lock.
type SlotKey struct {
	SalonID string
	Start   time.Time
	End     time.Time
}

func NewSlotKey(salonID string, start, end time.Time) SlotKey {
	return SlotKey{SalonID: salonID, Start: start.UTC(), End: end.UTC()}
}

func (k SlotKey) String() string {
	return k.SalonID + "|" + k.Start.UTC().Format(time.RFC3339) + "|" + k.End.UTC().Format(time.RFC3339)
}

// LockID reduces the key to the 32-bit value formed by the first 8 hex chars
// of its SHA-256 digest. Distinct keys may collide; that only adds
// serialization because the overlap re-check after locking is authoritative.
func (k SlotKey) LockID() int64 {
	sum := sha256.Sum256([]byte(k.String()))
	return int64(binary.BigEndian.Uint32(sum[:4]))
}
