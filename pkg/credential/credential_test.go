package credential

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStatic(t *testing.T) {
	s := NewStatic("abc")
	ctx := context.Background()

	if tok, err := s.Token(ctx); err != nil || tok != "abc" {
		t.Errorf("Token() = %q, %v", tok, err)
	}

	s.Set("")
	if tok, _ := s.Token(ctx); tok != "" {
		t.Errorf("Token() = %q after clear, want empty", tok)
	}
}

func TestEnv(t *testing.T) {
	t.Setenv("TABLEFEED_TEST_TOKEN", "  tok-1\n")

	tok, err := NewEnv("TABLEFEED_TEST_TOKEN").Token(context.Background())
	if err != nil || tok != "tok-1" {
		t.Errorf("Token() = %q, %v", tok, err)
	}

	if NewEnv("").Name != DefaultEnvVar {
		t.Errorf("default name = %q", NewEnv("").Name)
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	p := NewFile(path)
	ctx := context.Background()

	tok, err := p.Token(ctx)
	if err != nil || tok != "" {
		t.Errorf("missing file: Token() = %q, %v", tok, err)
	}

	if err := os.WriteFile(path, []byte("first\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if tok, _ := p.Token(ctx); tok != "first" {
		t.Errorf("Token() = %q, want first", tok)
	}

	// Rotation is picked up on the next call.
	if err := os.WriteFile(path, []byte("second"), 0o600); err != nil {
		t.Fatal(err)
	}
	if tok, _ := p.Token(ctx); tok != "second" {
		t.Errorf("Token() = %q, want second", tok)
	}

	if _, err := NewFile(t.TempDir()).Token(ctx); err == nil {
		t.Error("reading a directory succeeded")
	}
}

func TestProviderFunc(t *testing.T) {
	var p Provider = ProviderFunc(func(ctx context.Context) (string, error) { return "x", nil })
	if tok, _ := p.Token(context.Background()); tok != "x" {
		t.Errorf("Token() = %q", tok)
	}
}
