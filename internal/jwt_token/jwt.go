package jwttoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "idhub/pkg/domain-errors"
)

// AccessTokenClaims is the fixed claim shape relying parties decode.
// Subject is the user id and Audience holds the single client id.
type AccessTokenClaims struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Image  string `json:"image,omitempty"`
	AppID  string `json:"appId,omitempty"`
	jwt.RegisteredClaims
}

// UserClaims is the caller-supplied part of a token.
type UserClaims struct {
	UserID string
	Name   string
	Email  string
	Role   string
	Image  string
}

// JWTService signs and validates HS256 tokens with a process-wide key.
type JWTService struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

func NewJWTService(signingKey string, issuer string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		now:        time.Now,
	}
}

// WithClock returns a copy of s that stamps tokens using now.
func (s *JWTService) WithClock(now func() time.Time) *JWTService {
	cp := *s
	cp.now = now
	return &cp
}

func (s *JWTService) Issuer() string {
	return s.issuer
}

// Token types carried in the "typ" header. Access tokens follow RFC 9068;
// sessions are only ever accepted by this server.
const (
	TypeAccessToken  = "at+jwt"
	TypeSessionToken = "session+jwt"
)

// IssueAccessToken mints a token for user bound to audience (a client id).
func (s *JWTService) IssueAccessToken(user UserClaims, audience string, expiresIn time.Duration) (string, error) {
	return s.sign(user, audience, TypeAccessToken, expiresIn)
}

// IssueSessionToken mints a browser session for user. Its audience is the
// issuer itself.
func (s *JWTService) IssueSessionToken(user UserClaims, expiresIn time.Duration) (string, error) {
	return s.sign(user, s.issuer, TypeSessionToken, expiresIn)
}

func (s *JWTService) sign(user UserClaims, audience, typ string, expiresIn time.Duration) (string, error) {
	if len(s.signingKey) == 0 {
		return "", errors.New("jwt signing key is not configured")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		UserID: user.UserID,
		Name:   user.Name,
		Email:  user.Email,
		Role:   user.Role,
		Image:  user.Image,
		AppID:  audience,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	token.Header["typ"] = typ
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies an access token: signature, issuer, expiry, and
// that audience is among the token's audiences.
func (s *JWTService) ValidateToken(tokenString string, audience string) (*AccessTokenClaims, error) {
	return s.parse(tokenString, TypeAccessToken, jwt.WithAudience(audience))
}

// ValidateSession verifies a session token minted by IssueSessionToken.
func (s *JWTService) ValidateSession(tokenString string) (*AccessTokenClaims, error) {
	return s.parse(tokenString, TypeSessionToken, jwt.WithAudience(s.issuer))
}

// ValidateIssued accepts any access token this service minted regardless of
// audience. The userinfo endpoint serves every client with it.
func (s *JWTService) ValidateIssued(tokenString string) (*AccessTokenClaims, error) {
	claims, err := s.parse(tokenString, TypeAccessToken)
	if err != nil {
		return nil, err
	}
	if len(claims.Audience) == 0 || claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString, typ string, extra ...jwt.ParserOption) (*AccessTokenClaims, error) {
	opts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	}, extra...)
	parsed, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*AccessTokenClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if got, _ := parsed.Header["typ"].(string); got != typ {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "wrong token type")
	}
	return claims, nil
}
