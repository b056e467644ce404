package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/skify/api/pkg/response"
)

// TokenIssuer is stamped into every token this service mints and
// required on every token it accepts.
const TokenIssuer = "skify-api"

// Subscription plans carried in the token. Pro accounts are exempt from
// the per-user submission limits.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

const tokenTTL = 24 * time.Hour

type AuthMiddleware struct {
	jwtSecret string
}

// UserClaims identifies the account submitting transform work.
type UserClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Plan   string `json:"plan,omitempty"`
	jwt.RegisteredClaims
}

func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: jwtSecret}
}

// Authenticate validates the bearer token and stores the account
// identity on the request context for the handlers and rate limiter.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing bearer token")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return response.Unauthorized(c, "Authorization header must be a bearer token")
		}

		token, err := jwt.ParseWithClaims(parts[1], &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
			return []byte(m.jwtSecret), nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(TokenIssuer),
		)
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		claims, ok := token.Claims.(*UserClaims)
		if !ok || !token.Valid || claims.UserID == "" {
			return response.Unauthorized(c, "Token carries no account identity")
		}

		c.Locals("userId", claims.UserID)
		c.Locals("email", claims.Email)
		c.Locals("plan", claims.Plan)
		c.Locals("claims", claims)

		return c.Next()
	}
}

// GetUserID extracts the account id from the request context.
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// GetUserEmail extracts the account email from the request context.
func GetUserEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals("email").(string); ok {
		return email
	}
	return ""
}

// GetUserPlan extracts the subscription plan from the request context.
// Tokens minted before plans existed carry none and count as free.
func GetUserPlan(c *fiber.Ctx) string {
	if plan, ok := c.Locals("plan").(string); ok && plan != "" {
		return plan
	}
	return PlanFree
}

// GenerateToken mints a signed token for the given account (useful for testing)
func (m *AuthMiddleware) GenerateToken(userID, email, plan string) (string, error) {
	now := time.Now()
	claims := UserClaims{
		UserID: userID,
		Email:  email,
		Plan:   plan,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.jwtSecret))
}
