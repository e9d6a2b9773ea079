package booking

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleStaff    Role = "STAFF"
	RoleAdmin    Role = "ADMIN"
)

// Actor is the authenticated caller.
type Actor struct {
	UserID string
	Role   Role
}

type guard struct{ dir Directory }

// allow permits the reservation owner, staff of the reservation's salon and admins.
func (g guard) allow(ctx context.Context, a Actor, r *Reservation) error {
	if a.UserID == "" {
		return ErrForbidden
	}
	if a.Role == RoleAdmin || a.UserID == r.UserID {
		return nil
	}
	if a.Role == RoleStaff && g.dir != nil {
		ok, err := g.dir.IsSalonStaff(ctx, r.SalonID, a.UserID)
		if err != nil {
			return fmt.Errorf("staff lookup: %w", err)
		}
		if ok {
			return nil
		}
	}
	return ErrForbidden
}
