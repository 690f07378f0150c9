package stream

import (
	"errors"
	"net/http"
)

// Signer authorizes a request before it is sent upstream. Credential
// acquisition lives outside this package.
type Signer interface {
	Sign(req *http.Request) error
}

// NoopSigner leaves requests untouched (local replay servers).
type NoopSigner struct{}

func (NoopSigner) Sign(*http.Request) error { return nil }

// BearerSigner sets an Authorization: Bearer header.
type BearerSigner struct {
	Token string
}

func (s BearerSigner) Sign(req *http.Request) error {
	if s.Token == "" {
		return errors.New("bearer signer: empty token")
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)
	return nil
}

// SignerFor picks a BearerSigner when token is set and a NoopSigner otherwise.
func SignerFor(token string) Signer {
	if token == "" {
		return NoopSigner{}
	}
	return BearerSigner{Token: token}
}
