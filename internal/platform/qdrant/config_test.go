package qdrant

import (
	"errors"
	"testing"
)

func TestResolveConfigFromEnv(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_COLLECTION", "concepts")
	t.Setenv("QDRANT_VECTOR_DIM", "1536")
	t.Setenv("QDRANT_NAMESPACE_PREFIX", "")

	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.URL != "http://qdrant:6333" {
		t.Fatalf("URL: want=%q got=%q", "http://qdrant:6333", cfg.URL)
	}
	if cfg.Collection != "concepts" {
		t.Fatalf("Collection: want=%q got=%q", "concepts", cfg.Collection)
	}
	if cfg.VectorDim != 1536 {
		t.Fatalf("VectorDim: want=1536 got=%d", cfg.VectorDim)
	}
	if cfg.NamespacePrefix != "pg" {
		t.Fatalf("NamespacePrefix default: want=%q got=%q", "pg", cfg.NamespacePrefix)
	}
}

func TestResolveConfigFromEnvMissingURL(t *testing.T) {
	t.Setenv("QDRANT_URL", "")
	t.Setenv("QDRANT_COLLECTION", "concepts")
	t.Setenv("QDRANT_VECTOR_DIM", "1536")

	_, err := ResolveConfigFromEnv()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("want ConfigError, got %v", err)
	}
	if cfgErr.Code != ConfigErrorMissingURL {
		t.Fatalf("code: want=%q got=%q", ConfigErrorMissingURL, cfgErr.Code)
	}
}

func TestResolveConfigFromEnvInvalidVectorDim(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_COLLECTION", "concepts")
	t.Setenv("QDRANT_VECTOR_DIM", "not-a-number")

	_, err := ResolveConfigFromEnv()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("want ConfigError, got %v", err)
	}
	if cfgErr.Code != ConfigErrorInvalidVectorDim {
		t.Fatalf("code: want=%q got=%q", ConfigErrorInvalidVectorDim, cfgErr.Code)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name      string
		cfg       Config
		hasRawDim bool
		wantCode  ConfigErrorCode
	}{
		{
			name:      "valid",
			cfg:       Config{URL: "http://q:6333", Collection: "c", NamespacePrefix: "pg", VectorDim: 8},
			hasRawDim: true,
		},
		{
			name:      "invalid url",
			cfg:       Config{URL: "not a url", Collection: "c", VectorDim: 8},
			hasRawDim: true,
			wantCode:  ConfigErrorInvalidURL,
		},
		{
			name:      "missing collection",
			cfg:       Config{URL: "http://q:6333", VectorDim: 8},
			hasRawDim: true,
			wantCode:  ConfigErrorMissingCollection,
		},
		{
			name:     "missing vector dim",
			cfg:      Config{URL: "http://q:6333", Collection: "c"},
			wantCode: ConfigErrorMissingVectorDim,
		},
		{
			name:      "negative vector dim",
			cfg:       Config{URL: "http://q:6333", Collection: "c", VectorDim: -1},
			hasRawDim: true,
			wantCode:  ConfigErrorInvalidVectorDim,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateConfig(tc.cfg, tc.hasRawDim)
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("ValidateConfig: %v", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("want ConfigError, got %v", err)
			}
			if cfgErr.Code != tc.wantCode {
				t.Fatalf("code: want=%q got=%q", tc.wantCode, cfgErr.Code)
			}
		})
	}
}
