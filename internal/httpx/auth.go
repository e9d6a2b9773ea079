package httpx

import (
	"context"
	"errors"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"github.com/golang-jwt/jwt/v5"
	"net/http"
	"strings"
	"time"
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator validates HS256 bearer tokens issued by the identity service.
type Authenticator struct {
	Secret []byte
}

func (a *Authenticator) Parse(tokenStr string) (booking.Actor, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return a.Secret, nil
	})
	if err != nil {
		return booking.Actor{}, err
	}
	if !parsed.Valid || claims.Subject == "" {
		return booking.Actor{}, errors.New("invalid token")
	}
	role := booking.Role(strings.ToUpper(claims.Role))
	switch role {
	case booking.RoleCustomer, booking.RoleStaff, booking.RoleAdmin:
	case "":
		role = booking.RoleCustomer
	default:
		return booking.Actor{}, errors.New("unknown role")
	}
	return booking.Actor{UserID: claims.Subject, Role: role}, nil
}

// Sign issues a token for actor. Used by tooling and tests.
func (a *Authenticator) Sign(actor booking.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

// Middleware rejects requests without a valid bearer token and stores the
// actor in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			writeProblem(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
			return
		}
		actor, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			writeProblem(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

type actorKey struct{}

func WithActor(ctx context.Context, a booking.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) booking.Actor {
	a, _ := ctx.Value(actorKey{}).(booking.Actor)
	return a
}
