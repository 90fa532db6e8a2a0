package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/catalogd/registry/internal/logger"
)

// TokenStore defines the interface for token storage
type TokenStore interface {
	// ValidateToken validates a token and returns the APIToken
	ValidateToken(token string) (*APIToken, error)
	// GetTokenByHash retrieves a token by its hash
	GetTokenByHash(tokenHash string) (*APIToken, error)
	// CreateToken creates a new token and returns the plain token and APIToken
	CreateToken(name string, allowedKinds []string, permissions []Permission, expiresAt int64) (string, *APIToken, error)
	// DeleteToken deletes a token by its hash
	DeleteToken(tokenHash string) error
}

// InMemoryTokenStore is an in-memory implementation of TokenStore
type InMemoryTokenStore struct {
	tokens map[string]*APIToken // tokenHash -> APIToken
	log    zerolog.Logger
	mu     sync.RWMutex
}

// NewInMemoryTokenStore creates a new in-memory token store
func NewInMemoryTokenStore() *InMemoryTokenStore {
	return &InMemoryTokenStore{
		tokens: make(map[string]*APIToken),
		log:    logger.WithComponent("auth"),
	}
}

// hashToken hashes a token using SHA-256
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateToken validates a plain token and returns the APIToken
func (s *InMemoryTokenStore) ValidateToken(token string) (*APIToken, error) {
	return s.lookup(hashToken(token))
}

// GetTokenByHash retrieves a token by its hash
func (s *InMemoryTokenStore) GetTokenByHash(tokenHash string) (*APIToken, error) {
	return s.lookup(tokenHash)
}

func (s *InMemoryTokenStore) lookup(tokenHash string) (*APIToken, error) {
	s.mu.RLock()
	apiToken, exists := s.tokens[tokenHash]
	s.mu.RUnlock()

	if !exists {
		return nil, TokenNotFoundError{TokenHash: tokenHash}
	}
	if apiToken.IsExpired(time.Now().Unix()) {
		return nil, UnauthorizedError{Reason: "token expired"}
	}
	return apiToken, nil
}

// CreateToken creates a new token and returns the plain token and APIToken
func (s *InMemoryTokenStore) CreateToken(name string, allowedKinds []string, permissions []Permission, expiresAt int64) (string, *APIToken, error) {
	// Generate a new UUID-based token
	plainToken := uuid.New().String()

	apiToken, err := s.AddToken(plainToken, name, allowedKinds, permissions, expiresAt)
	if err != nil {
		return "", nil, err
	}
	return plainToken, apiToken, nil
}

// AddToken registers a caller-chosen plain token, e.g. one from configuration
func (s *InMemoryTokenStore) AddToken(plainToken, name string, allowedKinds []string, permissions []Permission, expiresAt int64) (*APIToken, error) {
	if plainToken == "" {
		return nil, UnauthorizedError{Reason: "token cannot be empty"}
	}

	apiToken := &APIToken{
		TokenHash:    hashToken(plainToken),
		Name:         name,
		AllowedKinds: allowedKinds,
		Permissions:  permissions,
		CreatedAt:    time.Now().Unix(),
		ExpiresAt:    expiresAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tokens[apiToken.TokenHash]; ok {
		return nil, fmt.Errorf("token %s duplicates token %s", name, existing.Name)
	}
	s.tokens[apiToken.TokenHash] = apiToken

	s.log.Info().
		Str("name", name).
		Strs("kinds", allowedKinds).
		Int("permissions", len(permissions)).
		Msg("API token registered")

	return apiToken, nil
}

// Len returns the number of registered tokens
func (s *InMemoryTokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// DeleteToken deletes a token by its hash
func (s *InMemoryTokenStore) DeleteToken(tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[tokenHash]; !exists {
		return TokenNotFoundError{TokenHash: tokenHash}
	}

	delete(s.tokens, tokenHash)

	s.log.Info().
		Str("token_hash", tokenHash).
		Msg("API token deleted")

	return nil
}

// AddDefaultToken adds a default token for testing/development
func (s *InMemoryTokenStore) AddDefaultToken() (string, error) {
	// Create a token with all permissions and no expiration
	plainToken, _, err := s.CreateToken(
		"default",
		nil, // Empty means all kinds
		AllPermissions,
		0, // No expiration
	)
	if err != nil {
		return "", fmt.Errorf("failed to create default token: %w", err)
	}

	return plainToken, nil
}
