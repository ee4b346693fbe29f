package webauthnhandler

import (
	"crypto/rand"
	"fmt"

	"github.com/go-webauthn/webauthn/webauthn"
)

type sessionKey string

const (
	userIDSessionKey   sessionKey = "userID"
	webAuthnSessionKey sessionKey = "webAuthnSession"
)

// user implements [webauthn.User]. The id is the opaque WebAuthn user handle,
// not the integer primary key of the users table.
type user struct {
	id          []byte
	displayName string
	credentials []webauthn.Credential
}

const userHandleLength = 32

// newRandomUser creates a user with a random WebAuthn user handle. Users are
// anonymous, so the display name does not need to be unique.
func newRandomUser() (*user, error) {
	id := make([]byte, userHandleLength)
	if _, err := rand.Read(id); err != nil {
		return nil, fmt.Errorf("generate user handle: %w", err)
	}
	return &user{
		id:          id,
		displayName: "Runner",
		credentials: nil,
	}, nil
}

func (u *user) WebAuthnID() []byte {
	return u.id
}

func (u *user) WebAuthnName() string {
	return u.displayName
}

func (u *user) WebAuthnDisplayName() string {
	return u.displayName
}

func (u *user) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}
