package query

import (
	"fmt"

	"FlowRadar/internal/config"
	"FlowRadar/internal/model"
)

// NewSearcher creates the searcher for the configured index backend.
func NewSearcher(cfg *config.Config) (model.Searcher, error) {
	switch cfg.Index.Backend {
	case "elasticsearch":
		return NewElasticSearcher(cfg.Elasticsearch)
	case "clickhouse":
		return NewClickHouseSearcher(cfg.ClickHouse)
	}
	return nil, fmt.Errorf("unknown index backend: '%s'", cfg.Index.Backend)
}
