package app

import (
	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/utils"
)

type Config struct {
	Environment string
	Version     string
	// SeedCatalogPath, when set, loads the concept catalog at startup.
	SeedCatalogPath string
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Environment:     utils.GetEnv("APP_ENV", "development", log),
		Version:         utils.GetEnv("APP_VERSION", "dev", log),
		SeedCatalogPath: utils.GetEnv("SEED_CATALOG_PATH", "", log),
	}
}
