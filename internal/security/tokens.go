package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
)

// AccessClaims holds JWT claims for the access token. SessionID is the id of the refresh
// token minted in the same pair.
type AccessClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
}

// RefreshClaims holds JWT claims for the refresh token. Its jti is the session id.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// Pair is one minted access/refresh token pair. Both tokens carry the same IssuedAt
// instant; that shared instant is what the store-level correlation window keys on.
type Pair struct {
	AccessToken      string
	AccessID         string
	RefreshToken     string
	RefreshID        string
	IssuedAt         time.Time
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenProvider issues and validates JWT access and refresh tokens using RS256 or ES256.
// It is the default implementation of the external token-issuance collaborator.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and checked on validation.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// MintPair issues a linked access/refresh pair for ownerID. Both tokens get the same iat,
// taken once before signing, so paired rows can be matched on issuance time later.
func (p *TokenProvider) MintPair(ownerID string) (*Pair, error) {
	accessID, err := generateTokenID()
	if err != nil {
		return nil, err
	}
	refreshID, err := generateTokenID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	accessExp := now.Add(p.accessTTL)
	refreshExp := now.Add(p.refreshTTL)

	accessClaims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        accessID,
			Subject:   ownerID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
		SessionID: refreshID,
	}
	accessToken, err := p.sign(accessClaims)
	if err != nil {
		return nil, err
	}

	refreshClaims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        refreshID,
			Subject:   ownerID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
		},
	}
	refreshToken, err := p.sign(refreshClaims)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:      accessToken,
		AccessID:         accessID,
		RefreshToken:     refreshToken,
		RefreshID:        refreshID,
		IssuedAt:         now,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud).
// Returns the token id, session id, and owner id, or an error.
func (p *TokenProvider) ValidateAccess(tokenString string) (tokenID, sessionID, ownerID string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, p.keyFunc)
	if err != nil {
		return "", "", "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return "", "", "", ErrInvalidToken
	}
	if err := p.checkIssuerAudience(claims.Issuer, claims.Audience); err != nil {
		return "", "", "", err
	}
	return claims.ID, claims.SessionID, claims.Subject, nil
}

// ValidateRefresh parses and validates the refresh token (signature, exp, iss, aud).
// Returns the session id (the token's jti) and owner id, or an error.
func (p *TokenProvider) ValidateRefresh(tokenString string) (sessionID, ownerID string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &RefreshClaims{}, p.keyFunc)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || !token.Valid {
		return "", "", ErrInvalidToken
	}
	if err := p.checkIssuerAudience(claims.Issuer, claims.Audience); err != nil {
		return "", "", err
	}
	return claims.ID, claims.Subject, nil
}

func (p *TokenProvider) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
		return p.publicKey, nil
	}
	if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
		return p.publicKey, nil
	}
	return nil, ErrInvalidToken
}

func (p *TokenProvider) checkIssuerAudience(issuer string, audience jwt.ClaimStrings) error {
	if issuer != p.issuer {
		return ErrInvalidToken
	}
	for _, a := range audience {
		if a == p.audience {
			return nil
		}
	}
	return ErrInvalidToken
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

func generateTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
