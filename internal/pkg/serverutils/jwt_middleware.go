package serverutils

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// LocalsVisitorID is the fiber.Ctx locals key holding the visitor id.
const LocalsVisitorID = "visitor_id"

// VisitorTokenTTL mirrors how long a browser keeps local storage: effectively
// forever for a returning visitor.
const VisitorTokenTTL = 365 * 24 * time.Hour

var ErrInvalidVisitorToken = errors.New("invalid visitor token")

// VisitorTokens signs and verifies the HS256 tokens that scope a widget to its
// conversation. They identify a browser, not a person.
type VisitorTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewVisitorTokens(secret string) *VisitorTokens {
	return &VisitorTokens{secret: []byte(secret), ttl: VisitorTokenTTL, now: time.Now}
}

func (v *VisitorTokens) Issue(visitorID string) (string, time.Time, error) {
	expiresAt := v.now().Add(v.ttl)
	claims := jwt.MapClaims{
		"visitor_id": visitorID,
		"exp":        expiresAt.Unix(),
		"iat":        v.now().Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign visitor token: %w", err)
	}
	return signed, expiresAt, nil
}

func (v *VisitorTokens) Parse(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidVisitorToken
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidVisitorToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidVisitorToken
	}
	visitorID, ok := claims["visitor_id"].(string)
	if !ok || visitorID == "" {
		return "", ErrInvalidVisitorToken
	}
	return visitorID, nil
}

// Middleware accepts the token from the Authorization header or, for
// websocket handshakes, the "token" query parameter.
func (v *VisitorTokens) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := ctx.Query("token")
		if authHeader := ctx.Get("Authorization"); len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing visitor token"))
		}

		visitorID, err := v.Parse(tokenStr)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid visitor token"))
		}

		ctx.Locals(LocalsVisitorID, visitorID)
		return ctx.Next()
	}
}

// VisitorID reads the id stored by Middleware.
func VisitorID(ctx *fiber.Ctx) string {
	id, _ := ctx.Locals(LocalsVisitorID).(string)
	return id
}
