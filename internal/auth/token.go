package auth

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"scriptroom/api/internal/util"
)

// Claims identify the owner whose project collection a request acts on.
type Claims struct {
	Sub  string `json:"sub"`
	Name string `json:"name"`
	JTI  string `json:"jti"`
	Exp  int64  `json:"exp"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

const issuer = "scriptroom"

// IssueToken signs an HS256 token for an owner. A missing JTI is generated.
func IssueToken(secret []byte, claims Claims) (string, error) {
	if claims.Sub == "" {
		return "", fmt.Errorf("issue token: %w", ErrInvalidToken)
	}
	if claims.JTI == "" {
		claims.JTI = util.NewID("tok")
	}
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"iss":  issuer,
		"sub":  claims.Sub,
		"name": claims.Name,
		"jti":  claims.JTI,
		"exp":  claims.Exp,
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// IssueOwnerToken issues a token for ownerID that lives for ttl.
func IssueOwnerToken(secret []byte, ownerID, name string, ttl time.Duration) (string, Claims, error) {
	claims := Claims{
		Sub:  ownerID,
		Name: name,
		JTI:  util.NewID("tok"),
		Exp:  time.Now().Add(ttl).Unix(),
	}
	token, err := IssueToken(secret, claims)
	if err != nil {
		return "", Claims{}, err
	}
	return token, claims, nil
}

func ParseToken(secret []byte, token string) (Claims, error) {
	parsed, err := gojwt.Parse(token, func(*gojwt.Token) (any, error) {
		return secret, nil
	},
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithIssuer(issuer),
		gojwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, gojwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(gojwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	claims := Claims{
		Sub:  stringClaim(mapClaims, "sub"),
		Name: stringClaim(mapClaims, "name"),
		JTI:  stringClaim(mapClaims, "jti"),
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.Exp = exp.Unix()
	}
	if claims.Sub == "" || claims.JTI == "" || claims.Exp == 0 {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

func stringClaim(claims gojwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return value
}
