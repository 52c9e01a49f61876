package server

import "lshann/internal/lsh"

// CreateIndexRequest represents the request body for creating an index.
// Omitted fields take the configured defaults.
type CreateIndexRequest struct {
	Name   string      `json:"name" binding:"required"`
	Points [][]float64 `json:"points" binding:"required"`
	Params *lsh.Params `json:"params,omitempty"`
	// HashType by name ("stable", "cosine", "angular") overrides params.hash_type.
	HashType string `json:"hash_type,omitempty"`
	Ranking  string `json:"ranking,omitempty"`
	Workers  int    `json:"workers,omitempty"`
	Seed     uint64 `json:"seed,omitempty"`
}

// SearchRequest represents the request body for searching an index
type SearchRequest struct {
	Queries           [][]float64 `json:"queries" binding:"required"`
	K                 *int        `json:"k,omitempty"`
	NumTablesToSearch *int        `json:"num_tables_to_search,omitempty"`
}

// NeighborsRequest searches the reference set of an index against itself
type NeighborsRequest struct {
	K                 *int `json:"k,omitempty"`
	NumTablesToSearch *int `json:"num_tables_to_search,omitempty"`
}

// SearchResponse represents the response body for search results
type SearchResponse struct {
	Results []QueryResult `json:"results"`
	Cached  bool          `json:"cached"`
}

// QueryResult holds the ranked neighbors of one query. Slots without a
// candidate hold the reference set size.
type QueryResult struct {
	Neighbors []int     `json:"neighbors"`
	Distances []float64 `json:"distances"`
}

// ListIndexesResponse represents the response body for listing indexes
type ListIndexesResponse struct {
	Indexes []IndexResponse `json:"indexes"`
}

// IndexResponse describes one index
type IndexResponse struct {
	Name                string     `json:"name"`
	Params              lsh.Params `json:"params"`
	HashType            string     `json:"hash_type"`
	Ranking             string     `json:"ranking"`
	Workers             int        `json:"workers"`
	Points              int        `json:"points"`
	Rows                int        `json:"rows"`
	Dropped             int        `json:"dropped"`
	DistanceEvaluations uint64     `json:"distance_evaluations"`
}
