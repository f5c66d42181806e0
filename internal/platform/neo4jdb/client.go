package neo4jdb

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
)

type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *logger.Logger
}

// NewFromEnv returns (nil, nil) when NEO4J_URI is unset; the prerequisite
// graph then runs on the relational join table alone.
func NewFromEnv(log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4jdb: logger required")
	}

	uri := strings.TrimSpace(os.Getenv("NEO4J_URI"))
	if uri == "" {
		return nil, nil
	}

	user := strings.TrimSpace(os.Getenv("NEO4J_USER"))
	if user == "" {
		user = "neo4j"
	}
	password := strings.TrimSpace(os.Getenv("NEO4J_PASSWORD"))
	database := strings.TrimSpace(os.Getenv("NEO4J_DATABASE"))

	timeoutSec := 10
	if v := strings.TrimSpace(os.Getenv("NEO4J_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxPool := 50
	if v := strings.TrimSpace(os.Getenv("NEO4J_MAX_POOL_SIZE")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			maxPool = parsed
		}
	}

	auth := neo4j.BasicAuth(user, password, "")
	driver, err := neo4j.NewDriverWithContext(uri, auth, func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = maxPool
		cfg.SocketConnectTimeout = time.Duration(timeoutSec) * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: init driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jdb: verify connectivity: %w", err)
	}

	return &Client{
		Driver:   driver,
		Database: database,
		log:      log.With("client", "Neo4jDB"),
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}

// MirrorPrerequisite upserts a (concept)-[:REQUIRES]->(prerequisite) edge.
func (c *Client) MirrorPrerequisite(ctx context.Context, conceptID, prerequisiteID, language string) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.Database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (a:Concept {id: $concept_id}) SET a.language = $language
			MERGE (b:Concept {id: $prerequisite_id}) SET b.language = $language
			MERGE (a)-[:REQUIRES]->(b)
		`, map[string]any{
			"concept_id":      conceptID,
			"prerequisite_id": prerequisiteID,
			"language":        language,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("neo4jdb: mirror prerequisite: %w", err)
	}
	return nil
}

// PrerequisiteClosure returns all transitive prerequisite IDs of a concept.
func (c *Client) PrerequisiteClosure(ctx context.Context, conceptID string) ([]string, error) {
	if c == nil || c.Driver == nil {
		return nil, nil
	}
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.Database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, `
			MATCH (a:Concept {id: $concept_id})-[:REQUIRES*1..]->(b:Concept)
			RETURN DISTINCT b.id AS id
		`, map[string]any{"concept_id": conceptID})
		if err != nil {
			return nil, err
		}
		var ids []string
		for rows.Next(ctx) {
			if id, ok := rows.Record().Get("id"); ok {
				if s, ok := id.(string); ok {
					ids = append(ids, s)
				}
			}
		}
		return ids, rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: prerequisite closure: %w", err)
	}
	ids, _ := result.([]string)
	return ids, nil
}
