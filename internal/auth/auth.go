// Package auth registers and logs in accounts and issues session tokens.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"rts-server/internal/store"
)

const (
	jwtExpiry        = 7 * 24 * time.Hour
	secretSetting    = "jwt_secret"
	minPasswordLen   = 4
	minUsernameLen   = 2
	maxUsernameLen   = 16
	loginRateWindow  = 60 * time.Second
	maxLoginAttempts = 10
)

// DefaultCost is the bcrypt cost used in production.
const DefaultCost = 12

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrRateLimited        = errors.New("too many login attempts, try again later")
	ErrInvalidToken       = errors.New("invalid token")
)

// AccountStore is the persistence surface auth needs.
type AccountStore interface {
	CreateAccount(username, passHash string) (int64, error)
	GetAccountByUsername(username string) (*store.AccountRow, error)
	UsernameExists(username string) (bool, error)
	GetSetting(key string) string
	SetSetting(key, value string) error
}

// Auth handles authentication
type Auth struct {
	db        AccountStore
	jwtSecret []byte
	cost      int
	log       *zap.Logger
	now       func() time.Time

	// IP -> login attempts
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// New loads the signing secret from db, creating it on first start. cost <= 0
// means DefaultCost.
func New(db AccountStore, cost int, log *zap.Logger) (*Auth, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cost <= 0 {
		cost = DefaultCost
	}
	secret, err := loadOrCreateSecret(db, log)
	if err != nil {
		return nil, err
	}
	return &Auth{
		db:        db,
		jwtSecret: secret,
		cost:      cost,
		log:       log,
		now:       time.Now,
		rateMap:   make(map[string]*rateEntry),
	}, nil
}

func loadOrCreateSecret(db AccountStore, log *zap.Logger) ([]byte, error) {
	if h := db.GetSetting(secretSetting); h != "" {
		if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
			return b, nil
		}
		log.Warn("stored jwt secret is malformed, generating a new one")
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	if err := db.SetSetting(secretSetting, hex.EncodeToString(secret)); err != nil {
		// tokens will not survive a restart
		log.Warn("could not persist jwt secret", zap.Error(err))
	}
	return secret, nil
}

// Register creates a new account
func (a *Auth) Register(username, password string) (int64, string, error) {
	username = strings.TrimSpace(username)

	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return 0, "", fmt.Errorf("username must be %d-%d characters", minUsernameLen, maxUsernameLen)
	}
	if len(password) < minPasswordLen {
		return 0, "", fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}

	exists, err := a.db.UsernameExists(username)
	if err != nil {
		return 0, "", fmt.Errorf("check username: %w", err)
	}
	if exists {
		return 0, "", ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return 0, "", fmt.Errorf("hash password: %w", err)
	}

	id, err := a.db.CreateAccount(username, string(hash))
	if err != nil {
		return 0, "", fmt.Errorf("create account: %w", err)
	}

	token, err := a.generateToken(id, username)
	if err != nil {
		return 0, "", err
	}
	a.log.Info("account registered", zap.Int64("account", id), zap.String("username", username))
	return id, token, nil
}

// Login authenticates a user and returns a JWT
func (a *Auth) Login(username, password, ip string) (int64, string, error) {
	if !a.checkRate(ip) {
		return 0, "", ErrRateLimited
	}

	acc, err := a.db.GetAccountByUsername(username)
	if err != nil {
		return 0, "", fmt.Errorf("load account: %w", err)
	}
	if acc == nil || acc.PassHash == "" {
		return 0, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PassHash), []byte(password)); err != nil {
		return 0, "", ErrInvalidCredentials
	}

	token, err := a.generateToken(acc.ID, acc.Username)
	if err != nil {
		return 0, "", err
	}
	return acc.ID, token, nil
}

// ValidateToken validates a JWT and returns (accountID, username, error)
func (a *Auth) ValidateToken(tokenStr string) (int64, string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, "", ErrInvalidToken
	}
	pid, ok := claims["pid"].(float64)
	if !ok {
		return 0, "", ErrInvalidToken
	}
	username, ok := claims["usr"].(string)
	if !ok {
		return 0, "", ErrInvalidToken
	}
	return int64(pid), username, nil
}

func (a *Auth) generateToken(accountID int64, username string) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"pid": accountID,
		"usr": username,
		"exp": now.Add(jwtExpiry).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

func (a *Auth) checkRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := a.now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(loginRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxLoginAttempts
}
