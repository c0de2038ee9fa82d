package permissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Token is a registered `resource:action` capability.
type Token string

// Resource returns the part of the token before the colon.
func (t Token) Resource() string {
	resource, _, _ := strings.Cut(string(t), ":")
	return resource
}

// Action returns the part of the token after the colon.
func (t Token) Action() string {
	_, action, _ := strings.Cut(string(t), ":")
	return action
}

func (t Token) String() string {
	return string(t)
}

// Permission describes a permission definition registered at start-up.
type Permission struct {
	Token       Token
	DependsOn   []Token
	Implies     []Token
	Description string
}

type permissionRegistry struct {
	mu          sync.RWMutex
	permissions map[Token]*Permission
}

var globalRegistry = &permissionRegistry{
	permissions: make(map[Token]*Permission),
}

var (
	// ErrUnknownPermission indicates a token that is malformed or has not been registered.
	ErrUnknownPermission = errors.New("permission: unknown permission")

	errNilPermission   = errors.New("permission: nil definition")
	errMalformedToken  = errors.New("permission: token must be resource:action")
	errDuplicateID     = errors.New("permission: already registered")
	errSelfDependency  = errors.New("permission: cannot depend on itself")
	errSelfImplication = errors.New("permission: cannot imply itself")
)

// ParseToken converts free text into a registered Token.
func ParseToken(raw string) (Token, error) {
	token, err := normaliseToken(raw)
	if err != nil {
		return "", fmt.Errorf("%w %q", ErrUnknownPermission, raw)
	}

	globalRegistry.mu.RLock()
	_, ok := globalRegistry.permissions[token]
	globalRegistry.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownPermission, raw)
	}
	return token, nil
}

// MustToken parses a token and panics when it is not registered. Use for package-level wiring only.
func MustToken(raw string) Token {
	token, err := ParseToken(raw)
	if err != nil {
		panic(err)
	}
	return token
}

// Register adds a permission definition to the global registry.
func Register(perm *Permission) error {
	if perm == nil {
		return errNilPermission
	}

	token, err := normaliseToken(string(perm.Token))
	if err != nil {
		return err
	}

	def := clonePermission(perm)
	def.Token = token

	depends, err := normaliseTokens(def.DependsOn, token, errSelfDependency)
	if err != nil {
		return err
	}
	implies, err := normaliseTokens(def.Implies, token, errSelfImplication)
	if err != nil {
		return err
	}
	def.DependsOn = depends
	def.Implies = implies

	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if _, exists := globalRegistry.permissions[token]; exists {
		return fmt.Errorf("%w: %s", errDuplicateID, token)
	}

	globalRegistry.permissions[token] = def
	return nil
}

// Get returns a copy of the permission definition when registered.
func Get(token Token) (*Permission, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	perm, ok := globalRegistry.permissions[token]
	if !ok {
		return nil, false
	}
	return clonePermission(perm), true
}

// GetAll returns a copy of all registered permissions keyed by token.
func GetAll() map[Token]*Permission {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	out := make(map[Token]*Permission, len(globalRegistry.permissions))
	for token, perm := range globalRegistry.permissions {
		out[token] = clonePermission(perm)
	}
	return out
}

// Tokens lists every registered token in sorted order.
func Tokens() []Token {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	out := make([]Token, 0, len(globalRegistry.permissions))
	for token := range globalRegistry.permissions {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidateDependencies ensures that all dependencies and implications reference known permissions.
func ValidateDependencies() error {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	for _, perm := range globalRegistry.permissions {
		for _, dep := range perm.DependsOn {
			if _, ok := globalRegistry.permissions[dep]; !ok {
				return fmt.Errorf("permission: %s depends on unknown permission %s", perm.Token, dep)
			}
		}
		for _, implied := range perm.Implies {
			if _, ok := globalRegistry.permissions[implied]; !ok {
				return fmt.Errorf("permission: %s implies unknown permission %s", perm.Token, implied)
			}
		}
	}
	return nil
}

func normaliseToken(raw string) (Token, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	resource, action, ok := strings.Cut(raw, ":")
	if !ok || resource == "" || action == "" || strings.Contains(action, ":") {
		return "", fmt.Errorf("%w: %q", errMalformedToken, raw)
	}
	return Token(raw), nil
}

func clonePermission(perm *Permission) *Permission {
	if perm == nil {
		return nil
	}

	cp := *perm
	if len(perm.DependsOn) > 0 {
		cp.DependsOn = append([]Token(nil), perm.DependsOn...)
	}
	if len(perm.Implies) > 0 {
		cp.Implies = append([]Token(nil), perm.Implies...)
	}
	return &cp
}

func normaliseTokens(values []Token, self Token, selfErr error) ([]Token, error) {
	if len(values) == 0 {
		return nil, nil
	}

	seen := make(map[Token]struct{}, len(values))
	var result []Token

	for _, value := range values {
		if strings.TrimSpace(string(value)) == "" {
			continue
		}
		token, err := normaliseToken(string(value))
		if err != nil {
			return nil, err
		}
		if token == self {
			return nil, selfErr
		}
		if _, exists := seen[token]; exists {
			continue
		}

		seen[token] = struct{}{}
		result = append(result, token)
	}

	return result, nil
}

// unregister removes a definition. Intended for testing only.
func unregister(token Token) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	delete(globalRegistry.permissions, token)
}
