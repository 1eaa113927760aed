package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleTeacher    Role = "teacher"

	// AdminSubject is the session subject of the superadmin.
	AdminSubject = "admin"
)

var (
	salt    = []byte("homeroom.core.auth.session")
	NowFunc = time.Now // mockable

	// errors
	ErrInvalidSession = errors.New("invalid session")
	ErrSessionExpired = errors.New("session expired")
)

func (r Role) Valid() bool {
	return r == RoleSuperadmin || r == RoleTeacher
}

// Session is the authenticated principal carried by a session token.
type Session struct {
	Subject  string `json:"sub"`
	Role     Role   `json:"role"`
	IssuedAt int64  `json:"iat"` // unix millis
}

func (s Session) IssuedTime() time.Time {
	return time.UnixMilli(s.IssuedAt)
}

// SessionCodec issues and validates `base64url(payload).base64url(hmac)` tokens.
type SessionCodec struct {
	key    [32]byte
	maxAge time.Duration
}

// NewSessionCodec derives the signing key from secret. A zero maxAge disables the age check.
func NewSessionCodec(secret string, maxAge time.Duration) *SessionCodec {
	return &SessionCodec{
		key:    sha256.Sum256(append(append([]byte{}, salt...), secret...)),
		maxAge: maxAge,
	}
}

func (c *SessionCodec) MaxAge() time.Duration {
	return c.maxAge
}

// Issue returns a signed token for subject with the given role.
func (c *SessionCodec) Issue(subject string, role Role) (string, error) {
	if subject == "" || !role.Valid() {
		return "", ErrInvalidSession
	}
	payload, err := json.Marshal(Session{Subject: subject, Role: role, IssuedAt: NowFunc().UnixMilli()})
	if err != nil {
		return "", err
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + c.sign(body), nil
}

// Validate checks the token signature and returns its Session.
func (c *SessionCodec) Validate(token string) (Session, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Session{}, ErrInvalidSession
	}

	// check that token has not been tampered with
	if !hmac.Equal([]byte(c.sign(parts[0])), []byte(parts[1])) {
		return Session{}, ErrInvalidSession
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Session{}, ErrInvalidSession
	}
	var sess Session
	if err = json.Unmarshal(payload, &sess); err != nil {
		return Session{}, ErrInvalidSession
	}
	if sess.Subject == "" || !sess.Role.Valid() {
		return Session{}, ErrInvalidSession
	}

	if c.maxAge > 0 && NowFunc().Sub(sess.IssuedTime()) > c.maxAge {
		return Session{}, ErrSessionExpired
	}
	return sess, nil
}

func (c *SessionCodec) sign(body string) string {
	h := hmac.New(sha256.New, c.key[:])
	h.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
