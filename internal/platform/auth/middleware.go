package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Claims are the token claims this service reads. Roles are not taken from
// the token; they come from the role assignments in the database.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey enables HMAC tokens; never set in production.
	SigningKey []byte
}

// DevUserHeader names the user in development when no token is sent.
const DevUserHeader = "X-Dev-User"

// Authenticator validates bearer tokens and publishes the subject as the
// user id of the request.
type Authenticator struct {
	cfg     JWTConfig
	keyfunc jwt.Keyfunc
	opts    []jwt.ParserOption
}

// NewAuthenticator prepares token validation. When neither a signing key nor
// a JWKS URL is configured the JWKS URL is discovered from the issuer.
func NewAuthenticator(cfg JWTConfig, logger zerolog.Logger) *Authenticator {
	a := &Authenticator{cfg: cfg}

	if len(cfg.SigningKey) > 0 {
		a.keyfunc = func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
		a.opts = append(a.opts, jwt.WithValidMethods([]string{"HS256"}))
	} else {
		url := cfg.JWKSURL
		if url == "" && cfg.Issuer != "" {
			discovered, err := DiscoverJWKSURL(cfg.Issuer)
			if err != nil {
				logger.Error().Err(err).Str("issuer", cfg.Issuer).Msg("OIDC discovery failed")
			}
			url = discovered
		}
		cache := NewJWKSCache(url, defaultJWKSCacheTTL)
		a.keyfunc = cache.Keyfunc()
		a.opts = append(a.opts, jwt.WithValidMethods([]string{"RS256"}))
	}

	if cfg.Issuer != "" {
		a.opts = append(a.opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		a.opts = append(a.opts, jwt.WithAudience(cfg.Audience))
	}
	a.opts = append(a.opts, jwt.WithLeeway(30*time.Second))
	return a
}

var errNoSubject = errors.New("token has no subject")

// Parse validates tokenStr and returns its claims.
func (a *Authenticator) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, a.keyfunc, a.opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, errNoSubject
	}
	return claims, nil
}

func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(token), nil
}

// Middleware requires a valid bearer token on every request.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}
			claims, err := a.Parse(tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			c.SetRequest(c.Request().WithContext(WithUserID(c.Request().Context(), claims.Subject)))
			return next(c)
		}
	}
}

// DevMiddleware accepts requests without a token in development. The user is
// taken from the X-Dev-User header, defaulting to "dev-user". A request that
// does carry a token is validated as usual.
func (a *Authenticator) DevMiddleware() echo.MiddlewareFunc {
	strict := a.Middleware()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		validated := strict(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" {
				return validated(c)
			}
			user := c.Request().Header.Get(DevUserHeader)
			if user == "" {
				user = "dev-user"
			}
			c.SetRequest(c.Request().WithContext(WithUserID(c.Request().Context(), user)))
			return next(c)
		}
	}
}
