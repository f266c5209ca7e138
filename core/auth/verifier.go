package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by a CivicLedger access token.
type Claims struct {
	MSPID  string `json:"mspid"`
	Role   string `json:"role"`
	Locale string `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	KeyProvider KeyProvider
	Issuer      string
}

// NewVerifier returns a verifier accepting HS256 tokens signed with secret.
func NewVerifier(secret []byte, issuer string) *Verifier {
	return &Verifier{KeyProvider: &StaticKeyProvider{Secret: secret}, Issuer: issuer}
}

func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		return v.KeyProvider.GetVerificationKey(kid)
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token or claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	if claims.Role == "" {
		return nil, errors.New("token has no role claim")
	}
	return claims, nil
}

// Identity converts verified claims into a Caller.
func (c *Claims) Identity() *Identity {
	id := NewIdentity(c.Subject, c.MSPID, c.Role)
	if c.Locale != "" {
		id.Attributes["locale"] = c.Locale
	}
	return id
}

// IssueToken signs a token for the given identity. Used by development
// tooling and tests; production identities come from the CA.
func IssueToken(secret []byte, issuer string, id *Identity, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		MSPID: id.MSPID(),
		Role:  id.Role(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if locale, ok := id.Attribute("locale"); ok {
		claims.Locale = locale
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
