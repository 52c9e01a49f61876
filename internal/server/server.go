package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lshann/internal/cache"
	"lshann/internal/config"
	"lshann/internal/index"
)

type Server struct {
	router  *gin.Engine
	conf    *config.Config
	manager *index.Manager
	results *cache.LRUCache[uint64, SearchResponse]
}

// New creates a new server instance
func New(conf *config.Config, manager *index.Manager) *Server {
	s := &Server{
		router:  gin.Default(),
		conf:    conf,
		manager: manager,
		results: cache.NewLRUCache[uint64, SearchResponse](conf.Cache.Size),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleHealthCheck())
	s.router.POST("/v1/indexes", s.handleCreateIndex())
	s.router.GET("/v1/indexes", s.handleListIndexes())
	s.router.GET("/v1/indexes/:name", s.handleGetIndex())
	s.router.DELETE("/v1/indexes/:name", s.handleDeleteIndex())
	s.router.POST("/v1/indexes/:name/search", s.handleSearch())
	s.router.POST("/v1/indexes/:name/neighbors", s.handleNeighbors())
	s.router.POST("/v1/indexes/:name/save", s.handleSaveIndex())
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

