package session

import (
	"errors"

	"portal/internal/lib/jwt"
	"portal/internal/lib/secret"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrStorageFailure  = errors.New("session storage failure")
	ErrInvalidRequest  = errors.New("invalid session request")
)

// ErrorKind names the failure classes callers are expected to branch on.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindMissingSecret
	KindMalformedToken
	KindInvalidSignature
	KindTokenExpired
	KindWrongTokenType
	KindSessionNotFound
	KindSessionExpired
	KindStorageFailure
	KindInvalidRequest
)

var kindNames = map[ErrorKind]string{
	KindUnknown:          "unknown",
	KindMissingSecret:    "missing_secret",
	KindMalformedToken:   "malformed_token",
	KindInvalidSignature: "invalid_signature",
	KindTokenExpired:     "token_expired",
	KindWrongTokenType:   "wrong_token_type",
	KindSessionNotFound:  "session_not_found",
	KindSessionExpired:   "session_expired",
	KindStorageFailure:   "storage_failure",
	KindInvalidRequest:   "invalid_request",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// TokenRejected reports whether the kind means the bearer has to authenticate again.
func (k ErrorKind) TokenRejected() bool {
	switch k {
	case KindMalformedToken, KindInvalidSignature, KindTokenExpired,
		KindWrongTokenType, KindSessionNotFound, KindSessionExpired:
		return true
	default:
		return false
	}
}

// KindOf classifies an error returned by the Manager. Nil maps to KindUnknown.
// Storage failures are checked first because they wrap the driver error.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrStorageFailure):
		return KindStorageFailure
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrSessionExpired):
		return KindSessionExpired
	case errors.Is(err, ErrSessionNotFound):
		return KindSessionNotFound
	case errors.Is(err, jwt.ErrWrongTokenType):
		return KindWrongTokenType
	case errors.Is(err, jwt.ErrTokenExpired):
		return KindTokenExpired
	case errors.Is(err, jwt.ErrInvalidSignature):
		return KindInvalidSignature
	case errors.Is(err, jwt.ErrMalformedToken):
		return KindMalformedToken
	case errors.Is(err, secret.ErrMissingSecret):
		return KindMissingSecret
	default:
		return KindUnknown
	}
}
