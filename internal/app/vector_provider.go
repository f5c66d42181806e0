package app

import (
	"fmt"
	"strings"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/platform/qdrant"
	"github.com/polyglotta/polyglotta-backend/internal/platform/vecstore"
	"github.com/polyglotta/polyglotta-backend/internal/utils"
)

const (
	vectorProviderMemory = "memory"
	vectorProviderQdrant = "qdrant"

	defaultVectorDim = 1536
)

// NewVectorStore selects the vector store backend from VECTOR_PROVIDER.
// The in-memory store is the default; qdrant is the indexed option.
func NewVectorStore(log *logger.Logger) (vecstore.Store, error) {
	provider := strings.ToLower(strings.TrimSpace(utils.GetEnv("VECTOR_PROVIDER", vectorProviderMemory, log)))
	switch provider {
	case "", vectorProviderMemory:
		dim := utils.GetEnvAsInt("VECTOR_DIM", defaultVectorDim, log)
		return vecstore.NewMemoryStore(log, dim)
	case vectorProviderQdrant:
		cfg, err := qdrant.ResolveConfigFromEnv()
		if err != nil {
			return nil, err
		}
		return qdrant.NewVectorStore(log, cfg)
	default:
		return nil, fmt.Errorf("unknown VECTOR_PROVIDER %q (expected %q or %q)", provider, vectorProviderMemory, vectorProviderQdrant)
	}
}
