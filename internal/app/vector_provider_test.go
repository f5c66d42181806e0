package app

import (
	"testing"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
)

func TestNewVectorStoreDefaultsToMemory(t *testing.T) {
	t.Setenv("VECTOR_PROVIDER", "")
	store, err := NewVectorStore(logger.NewNop())
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	if store == nil {
		t.Fatalf("default provider returned nil store")
	}
}

func TestNewVectorStoreProviderIsCaseInsensitive(t *testing.T) {
	t.Setenv("VECTOR_PROVIDER", "  Memory ")
	store, err := NewVectorStore(logger.NewNop())
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	if store == nil {
		t.Fatalf("memory provider returned nil store")
	}
}

func TestNewVectorStoreQdrantRequiresURL(t *testing.T) {
	t.Setenv("VECTOR_PROVIDER", "qdrant")
	t.Setenv("QDRANT_URL", "")
	if _, err := NewVectorStore(logger.NewNop()); err == nil {
		t.Fatalf("qdrant without QDRANT_URL should fail")
	}
}

func TestNewVectorStoreRejectsUnknownProvider(t *testing.T) {
	t.Setenv("VECTOR_PROVIDER", "weaviate")
	if _, err := NewVectorStore(logger.NewNop()); err == nil {
		t.Fatalf("unknown provider should fail")
	}
}
