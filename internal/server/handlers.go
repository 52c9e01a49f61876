package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lshann/internal/cache"
	"lshann/internal/dataset"
	"lshann/internal/index"
	"lshann/internal/lsh"
	pkgerrors "lshann/pkg/errors"
	"lshann/pkg/logger"
)

// errorStatus maps registry and index errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrIndexExists):
		return http.StatusConflict
	case errors.Is(err, pkgerrors.ErrDimensionMismatch),
		errors.Is(err, pkgerrors.ErrInsufficientData),
		errors.Is(err, pkgerrors.ErrInvalidParameter),
		errors.Is(err, pkgerrors.ErrUnsupportedHashType),
		errors.Is(err, pkgerrors.ErrInvalidDimension):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleHealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (s *Server) handleCreateIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		conf := s.manager.DefaultIndexConfig()
		req := CreateIndexRequest{
			Params:  &conf.Params,
			Ranking: conf.Ranking,
			Workers: conf.Workers,
			Seed:    conf.Seed,
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Params != nil {
			conf.Params = *req.Params
		}
		if req.HashType != "" {
			hashType, err := lsh.ParseHashType(req.HashType)
			if err != nil {
				abort(c, err)
				return
			}
			conf.Params.HashType = hashType
		}
		conf.Ranking = req.Ranking
		conf.Workers = req.Workers
		conf.Seed = req.Seed

		if _, err := s.manager.CreateIndex(req.Name, conf, req.Points); err != nil {
			abort(c, err)
			return
		}
		s.results.Purge()

		info, err := s.manager.Info(req.Name)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusCreated, indexResponse(info))
	}
}

func (s *Server) handleListIndexes() gin.HandlerFunc {
	return func(c *gin.Context) {
		infos := s.manager.List()
		resp := ListIndexesResponse{Indexes: make([]IndexResponse, 0, len(infos))}
		for _, info := range infos {
			resp.Indexes = append(resp.Indexes, indexResponse(info))
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) handleGetIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := s.manager.Info(c.Param("name"))
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, indexResponse(info))
	}
}

func (s *Server) handleDeleteIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.manager.DeleteIndex(c.Param("name")); err != nil {
			abort(c, err)
			return
		}
		s.results.Purge()
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleSaveIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.manager.SaveIndex(c.Param("name")); err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "saved"})
	}
}

func (s *Server) handleSearch() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		var req SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		k, tables := s.searchArgs(req.K, req.NumTablesToSearch)

		x, generation, err := s.manager.Lookup(name)
		if err != nil {
			abort(c, err)
			return
		}
		key := cache.SearchKey(name, generation, false, k, tables, req.Queries)
		if resp, ok := s.results.Get(key); ok {
			resp.Cached = true
			c.JSON(http.StatusOK, resp)
			return
		}

		queries, err := dataset.FromPoints(req.Queries)
		if err != nil {
			abort(c, err)
			return
		}
		res, err := x.Search(queries, k, tables)
		if err != nil {
			abort(c, err)
			return
		}

		resp := searchResponse(res)
		s.results.Set(key, resp)
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) handleNeighbors() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		var req NeighborsRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		k, tables := s.searchArgs(req.K, req.NumTablesToSearch)

		x, generation, err := s.manager.Lookup(name)
		if err != nil {
			abort(c, err)
			return
		}
		key := cache.SearchKey(name, generation, true, k, tables, nil)
		if resp, ok := s.results.Get(key); ok {
			resp.Cached = true
			c.JSON(http.StatusOK, resp)
			return
		}

		res, err := x.SearchSelf(k, tables)
		if err != nil {
			abort(c, err)
			return
		}

		resp := searchResponse(res)
		s.results.Set(key, resp)
		c.JSON(http.StatusOK, resp)
	}
}

// searchArgs fills omitted search arguments from the configuration.
func (s *Server) searchArgs(k, tables *int) (int, int) {
	outK, outTables := s.conf.Index.K, s.conf.Index.NumTablesToSearch
	if k != nil {
		outK = *k
	}
	if tables != nil {
		outTables = *tables
	}
	return outK, outTables
}

func searchResponse(res *lsh.SearchResult) SearchResponse {
	resp := SearchResponse{Results: make([]QueryResult, res.NumQueries)}
	for q := range resp.Results {
		neighbors, distances := res.Column(q)
		resp.Results[q] = QueryResult{Neighbors: neighbors, Distances: distances}
	}
	return resp
}

func indexResponse(info index.Info) IndexResponse {
	return IndexResponse{
		Name:                info.Name,
		Params:              info.Params,
		HashType:            info.Params.HashType.String(),
		Ranking:             info.Ranking,
		Workers:             info.Workers,
		Points:              info.Points,
		Rows:                info.Rows,
		Dropped:             info.Dropped,
		DistanceEvaluations: info.DistanceEvaluations,
	}
}
