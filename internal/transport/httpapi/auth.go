package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Claims — содержимое bearer-токена: sub — идентификатор пользователя, role — его роль.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Principal — аутентифицированный пользователь запроса.
type Principal struct {
	UserID string
	Role   string
}

type principalKey struct{}

// PrincipalFrom достаёт пользователя из контекста.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// WithPrincipal кладёт пользователя в контекст.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Authenticator проверяет HS256-токены.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewAuthenticator создаёт проверку токенов. issuer может быть пустым.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue выпускает токен. Используется в dev-окружении и тестах.
func (a *Authenticator) Issue(userID, role string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse проверяет подпись, срок действия и роль.
func (a *Authenticator) Parse(raw string) (Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return Principal{}, domain.ErrUserRequired
	}

	role := claims.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !slices.Contains([]string{domain.RoleUser, domain.RoleSeller, domain.RoleAdmin}, role) {
		return Principal{}, fmt.Errorf("%w: unknown role %q", domain.ErrUnauthorized, role)
	}
	return Principal{UserID: claims.Subject, Role: role}, nil
}

// Middleware требует заголовок Authorization: Bearer <token>.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			respondError(w, r, fmt.Errorf("%w: authorization header is missing", domain.ErrUnauthorized))
			return
		}

		principal, err := a.Parse(strings.TrimSpace(token))
		if err != nil {
			respondError(w, r, err)
			return
		}

		ctx := WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var errRoleForbidden = errors.New("role is not allowed for this operation")

// RequireRole пропускает только перечисленные роли.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok {
				respondError(w, r, domain.ErrUserRequired)
				return
			}
			if !slices.Contains(roles, principal.Role) {
				respondError(w, r, fmt.Errorf("%w: %v", domain.ErrForbidden, errRoleForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
