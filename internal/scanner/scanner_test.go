package scanner

import (
	"context"
	"testing"

	"NewsDesk/internal/domain"
)

type stubScanner struct{ name string }

func (s stubScanner) Name() string { return s.name }

func (s stubScanner) Scan(context.Context, Request) ([]domain.Message, error) {
	return []domain.Message{{ID: s.name}}, nil
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(stubScanner{name: "telegram"})

	sc, err := reg.Resolve("telegram")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if sc.Name() != "telegram" {
		t.Fatalf("unexpected scanner: %s", sc.Name())
	}

	if _, err := reg.Resolve("rss"); err == nil {
		t.Fatalf("expected error for unregistered scanner")
	}
}

func TestRegistryZeroValue(t *testing.T) {
	t.Parallel()

	var reg Registry
	reg.Register(stubScanner{name: "rss"})
	if _, err := reg.Resolve("rss"); err != nil {
		t.Fatalf("zero-value registry must accept registrations: %v", err)
	}
}
