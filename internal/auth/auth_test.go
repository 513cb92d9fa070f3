package auth

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"rts-server/internal/store"
)

func newTestAuth(t *testing.T) (*Auth, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	a, err := New(db, bcrypt.MinCost, nil)
	if err != nil {
		t.Fatal(err)
	}
	return a, db
}

func TestRegisterAndLogin(t *testing.T) {
	a, _ := newTestAuth(t)

	id, token, err := a.Register("  alice ", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id == 0 || token == "" {
		t.Fatal("expected id and token")
	}

	gotID, user, err := a.ValidateToken(token)
	if err != nil || gotID != id || user != "alice" {
		t.Errorf("ValidateToken = %d, %q, %v", gotID, user, err)
	}

	loginID, _, err := a.Login("alice", "secret", "1.2.3.4")
	if err != nil || loginID != id {
		t.Errorf("login = %d, %v", loginID, err)
	}
	if _, _, err := a.Login("alice", "wrong", "1.2.3.4"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := a.Login("nobody", "secret", "1.2.3.4"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	a, _ := newTestAuth(t)

	if _, _, err := a.Register("a", "secret"); err == nil {
		t.Error("short username should fail")
	}
	if _, _, err := a.Register("bob", "123"); err == nil {
		t.Error("short password should fail")
	}
	if _, _, err := a.Register("bob", "secret"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := a.Register("bob", "secret"); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestLoginRateLimit(t *testing.T) {
	a, _ := newTestAuth(t)
	a.Register("carol", "secret")

	for i := 0; i < maxLoginAttempts; i++ {
		a.Login("carol", "wrong", "5.5.5.5")
	}
	if _, _, err := a.Login("carol", "secret", "5.5.5.5"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if _, _, err := a.Login("carol", "secret", "6.6.6.6"); err != nil {
		t.Errorf("other IP should not be limited: %v", err)
	}
}

func TestSecretPersists(t *testing.T) {
	a, db := newTestAuth(t)
	_, token, err := a.Register("dave", "secret")
	if err != nil {
		t.Fatal(err)
	}

	again, err := New(db, bcrypt.MinCost, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := again.ValidateToken(token); err != nil {
		t.Errorf("token should survive a restart: %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	a, _ := newTestAuth(t)
	_, token, err := a.Register("erin", "secret")
	if err != nil {
		t.Fatal(err)
	}

	a.now = func() time.Time { return time.Now().Add(jwtExpiry + time.Hour) }
	if _, _, err := a.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
	if _, _, err := a.ValidateToken("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for garbage, got %v", err)
	}
}
