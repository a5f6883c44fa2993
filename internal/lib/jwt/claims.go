package jwt

import (
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType tags a token as an access or a refresh token.
// The zero value is not a valid type.
type TokenType uint8

const (
	Access TokenType = iota + 1
	Refresh
)

func (t TokenType) String() string {
	switch t {
	case Access:
		return "access"
	case Refresh:
		return "refresh"
	default:
		return fmt.Sprintf("TokenType(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the known token types.
func (t TokenType) Valid() bool {
	return t == Access || t == Refresh
}

func (t TokenType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("jwt: cannot marshal token type %d", uint8(t))
	}
	return json.Marshal(t.String())
}

func (t *TokenType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	switch s {
	case "access":
		*t = Access
	case "refresh":
		*t = Refresh
	default:
		return fmt.Errorf("jwt: unknown token type %q", s)
	}

	return nil
}

// Claims is the payload carried by portal tokens.
// Subject holds the customer id.
type Claims struct {
	Email     string    `json:"email"`
	Type      TokenType `json:"type"`
	SessionID string    `json:"sid"`
	jwt.RegisteredClaims
}
