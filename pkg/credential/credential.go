// Package credential supplies bearer tokens to the client.
//
// A Provider is asked for the current token on every connection attempt.
// Providers do no retrying of their own. An empty token means no credential
// is available, which the client treats as a non-retryable failure.
package credential

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// DefaultEnvVar is the environment variable read by Env when none is given.
const DefaultEnvVar = "TABLEFEED_TOKEN"

// Provider returns the current bearer token.
type Provider interface {
	// Token returns the token, or "" when none is available.
	Token(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (string, error)

// Token calls f(ctx).
func (f ProviderFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static holds a fixed token that can be replaced at runtime.
type Static struct {
	mu    sync.RWMutex
	token string
}

// NewStatic creates a provider returning token.
func NewStatic(token string) *Static {
	return &Static{token: token}
}

// Token returns the stored token.
func (s *Static) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// Set replaces the stored token. An empty token clears it.
func (s *Static) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Env reads the token from an environment variable on every call.
type Env struct {
	Name string
}

// NewEnv creates a provider for the variable name (default TABLEFEED_TOKEN).
func NewEnv(name string) Env {
	if name == "" {
		name = DefaultEnvVar
	}
	return Env{Name: name}
}

// Token returns the trimmed variable value.
func (e Env) Token(ctx context.Context) (string, error) {
	return strings.TrimSpace(os.Getenv(e.Name)), nil
}

// File reads the token from a file on every call, so rotated tokens are
// picked up on the next connection attempt.
type File struct {
	Path string
}

// NewFile creates a provider for path.
func NewFile(path string) File {
	return File{Path: path}
}

// Token returns the trimmed file content. A missing file means no token.
func (f File) Token(ctx context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
