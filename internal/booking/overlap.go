package booking

import (
	"context"
	"time"
)

// Overlaps reports whether [s1,e1) and [s2,e2) intersect.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// OverlapChecker answers whether any occupying reservation of the salon
// intersects [start,end), ignoring excludeID. The answer is only stable while
// the slot lock for the interval is held by the same transaction.
type OverlapChecker interface {
	HasOverlap(ctx context.Context, salonID string, start, end time.Time, excludeID string) (bool, error)
}

// FindOverlap is the in-process form of the overlap query.
func FindOverlap(rs []Reservation, salonID string, start, end time.Time, excludeID string) *Reservation {
	for i := range rs {
		r := &rs[i]
		if r.SalonID != salonID || r.ID == excludeID || !r.Status.Occupies() {
			continue
		}
		if Overlaps(r.StartTime, r.EndTime, start, end) {
			return r
		}
	}
	return nil
}

func validInterval(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return ErrInvalidInterval
	}
	return nil
}
