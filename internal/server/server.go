// Package server exposes a document store over HTTP so several editors can
// share one backing store. Routes live under /v1; /metrics serves the
// Prometheus registry.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"mycelica/arbor/internal/graph"
	"mycelica/arbor/internal/persist"
)

// Backend is what the server serves: the document store and its catalog.
type Backend interface {
	persist.Store
	persist.Catalog
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error codes.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeNotFound       = "NOT_FOUND"
	CodeStructural     = "STRUCTURAL"
	CodeInternal       = "INTERNAL"
)

// requestsTotal counts handled requests by route and status.
var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "arbor_http_requests_total",
	Help: "HTTP requests handled, by method, route and status.",
}, []string{"method", "route", "status"})

// requestDuration observes request latency by route.
var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "arbor_http_request_duration_seconds",
	Help:    "HTTP request latency.",
	Buckets: prometheus.DefBuckets,
}, []string{"route"})

// Server serves a Backend.
type Server struct {
	backend Backend
	log     logrus.FieldLogger
	engine  *gin.Engine
}

// New builds the router. A nil logger discards.
func New(backend Backend, logger logrus.FieldLogger) *Server {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	s := &Server{backend: backend, log: logger, engine: gin.New()}
	s.engine.Use(gin.Recovery(), s.observe)
	RegisterRoutes(s.engine.Group("/v1"), s)
	s.engine.GET("/health", s.HandleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// RegisterRoutes registers the document routes on rg:
//
//	GET    /documents?owner=            list documents
//	POST   /documents                   create a document
//	GET    /documents/:id?user=         owner read
//	GET    /documents/:id/shared        shared read
//	PUT    /documents/:id/nodes         replace the node list
//	PATCH  /documents/:id/nodes/:node   single-node patch
//	GET    /documents/:id/editors       active editors
//	PUT    /documents/:id/editors/:user presence heartbeat
//	DELETE /documents/:id/editors/:user leave
func RegisterRoutes(rg *gin.RouterGroup, s *Server) {
	docs := rg.Group("/documents")
	{
		docs.GET("", s.HandleListDocuments)
		docs.POST("", s.HandleCreateDocument)
		docs.GET("/:id", s.HandleGetDocument)
		docs.GET("/:id/shared", s.HandleGetSharedDocument)
		docs.PUT("/:id/nodes", s.HandleSaveNodes)
		docs.PATCH("/:id/nodes/:node", s.HandleUpdateNode)
		docs.GET("/:id/editors", s.HandleGetActiveEditors)
		docs.PUT("/:id/editors/:user", s.HandleUpdateActiveEditor)
		docs.DELETE("/:id/editors/:user", s.HandleRemoveActiveEditor)
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.WithField("addr", addr).Info("serving")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	status := c.Writer.Status()
	requestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	s.log.WithFields(logrus.Fields{
		"method": c.Request.Method,
		"route":  route,
		"status": status,
	}).Debug("request")
}

// fail maps err onto a status code and writes the error body.
func (s *Server) fail(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, CodeInternal
	switch {
	case errors.Is(err, graph.ErrNotFound):
		status, code = http.StatusNotFound, CodeNotFound
	case graph.IsStructural(err):
		status, code = http.StatusConflict, CodeStructural
	default:
		s.log.WithError(err).WithField("route", c.FullPath()).Warn("backend error")
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: CodeInvalidRequest})
}

// HandleHealth handles GET /health.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleListDocuments handles GET /v1/documents.
func (s *Server) HandleListDocuments(c *gin.Context) {
	docs, err := s.backend.ListDocuments(c.Request.Context(), c.Query("owner"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

// HandleCreateDocument handles POST /v1/documents.
func (s *Server) HandleCreateDocument(c *gin.Context) {
	var doc graph.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		badRequest(c, "invalid document body")
		return
	}
	if doc.OwnerID == "" {
		badRequest(c, "owner_id is required")
		return
	}
	if err := graph.CheckInvariants(doc.Nodes); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.backend.CreateDocument(c.Request.Context(), &doc); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// HandleGetDocument handles GET /v1/documents/:id?user=.
func (s *Server) HandleGetDocument(c *gin.Context) {
	user := c.Query("user")
	if user == "" {
		badRequest(c, "user is required")
		return
	}
	doc, err := s.backend.GetDocument(c.Request.Context(), c.Param("id"), user)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// HandleGetSharedDocument handles GET /v1/documents/:id/shared.
func (s *Server) HandleGetSharedDocument(c *gin.Context) {
	doc, err := s.backend.GetSharedDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// HandleSaveNodes handles PUT /v1/documents/:id/nodes.
func (s *Server) HandleSaveNodes(c *gin.Context) {
	var nodes []graph.Node
	if err := c.ShouldBindJSON(&nodes); err != nil {
		badRequest(c, "invalid node list")
		return
	}
	if err := s.backend.SaveNodes(c.Request.Context(), c.Param("id"), nodes); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleUpdateNode handles PATCH /v1/documents/:id/nodes/:node.
func (s *Server) HandleUpdateNode(c *gin.Context) {
	var patch graph.NodePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid patch")
		return
	}
	if err := s.backend.UpdateNode(c.Request.Context(), c.Param("id"), c.Param("node"), patch); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleGetActiveEditors handles GET /v1/documents/:id/editors.
func (s *Server) HandleGetActiveEditors(c *gin.Context) {
	editors, err := s.backend.GetActiveEditors(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, editors)
}

// HandleUpdateActiveEditor handles PUT /v1/documents/:id/editors/:user.
func (s *Server) HandleUpdateActiveEditor(c *gin.Context) {
	var e graph.ActiveEditor
	if err := c.ShouldBindJSON(&e); err != nil {
		badRequest(c, "invalid editor")
		return
	}
	e.DocumentID = c.Param("id")
	e.UserID = c.Param("user")
	if e.LastSeen == 0 {
		e.LastSeen = time.Now().UnixMilli()
	}
	if err := s.backend.UpdateActiveEditor(c.Request.Context(), e); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleRemoveActiveEditor handles DELETE /v1/documents/:id/editors/:user.
func (s *Server) HandleRemoveActiveEditor(c *gin.Context) {
	if err := s.backend.RemoveActiveEditor(c.Request.Context(), c.Param("id"), c.Param("user")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
