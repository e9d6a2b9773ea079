package booking

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"testing"
	"time"
)

func TestSlotKeyLockIDDeterministic(t *testing.T) {
	start := time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	jakarta := time.FixedZone("WIB", 7*3600)

	a := NewSlotKey("salon-1", start, end)
	b := NewSlotKey("salon-1", start.In(jakarta), end.In(jakarta))
	if a.LockID() != b.LockID() {
		t.Fatalf("same instant in different zones gave %d and %d", a.LockID(), b.LockID())
	}
	if a.String() != "salon-1|2030-05-01T10:00:00Z|2030-05-01T11:00:00Z" {
		t.Fatalf("unexpected key string %q", a.String())
	}
}

func TestSlotKeyLockIDIsFirstEightHexChars(t *testing.T) {
	k := NewSlotKey("salon-9", time.Date(2030, 1, 2, 9, 30, 0, 0, time.UTC), time.Date(2030, 1, 2, 10, 0, 0, 0, time.UTC))
	sum := sha256.Sum256([]byte(k.String()))
	want, err := strconv.ParseInt(hex.EncodeToString(sum[:])[:8], 16, 64)
	if err != nil {
		t.Fatal(err)
	}
	if got := k.LockID(); got != want {
		t.Fatalf("LockID=%d want %d", got, want)
	}
	if k.LockID() < 0 || k.LockID() > 0xFFFFFFFF {
		t.Fatalf("LockID out of 32-bit range: %d", k.LockID())
	}
}

func TestSlotKeyDiffersByComponent(t *testing.T) {
	start := time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)
	base := NewSlotKey("salon-1", start, start.Add(time.Hour))
	others := []SlotKey{
		NewSlotKey("salon-2", start, start.Add(time.Hour)),
		NewSlotKey("salon-1", start.Add(time.Minute), start.Add(time.Hour)),
		NewSlotKey("salon-1", start, start.Add(2*time.Hour)),
	}
	for _, o := range others {
		if o.String() == base.String() {
			t.Fatalf("key %q should differ from %q", o, base)
		}
	}
}
