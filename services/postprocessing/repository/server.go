// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package repository

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/qcpost/pkg/validation"
	"github.com/AleutianAI/qcpost/services/postprocessing/core"
)

// Wire contract headers. Valid-From/Valid-Until/Created mirror the store
// metadata keys; the full metadata map travels JSON-encoded in one header
// to keep arbitrary keys out of the HTTP header namespace.
const (
	headerValidFrom  = "Valid-From"
	headerValidUntil = "Valid-Until"
	headerCreated    = "Created"
	headerMetadata   = "X-Object-Metadata"
)

// metadataQueryPrefix marks metadata filters in query strings: meta.k=v.
const metadataQueryPrefix = "meta."

// Server exposes a Database over the object-store wire contract:
//
//	GET  /api/v1/list/*path?latest=bool&meta.k=v   — listing
//	GET  /api/v1/object/*path?ts=ms&meta.k=v       — payload + headers
//	POST /api/v1/object/*path                      — upload
//
// It exists for development and tests; production deployments point the
// Client at the real store.
type Server struct {
	store  *BadgerDatabase
	logger *slog.Logger
	engine *gin.Engine
}

// NewServer builds the HTTP surface over an embedded store.
func NewServer(store *BadgerDatabase, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{store: store, logger: logger, engine: gin.New()}
	s.engine.Use(gin.Recovery())

	api := s.engine.Group("/api/v1")
	api.GET("/list/*path", s.handleList)
	api.GET("/object/*path", s.handleGet)
	api.POST("/object/*path", s.handlePut)
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return s
}

// Handler returns the root http.Handler, for mounting or httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error { return s.engine.Run(addr) }

func pathParam(c *gin.Context) string {
	return strings.Trim(c.Param("path"), "/")
}

func metadataFilter(c *gin.Context) map[string]string {
	md := map[string]string{}
	for key, values := range c.Request.URL.Query() {
		if strings.HasPrefix(key, metadataQueryPrefix) && len(values) > 0 {
			md[strings.TrimPrefix(key, metadataQueryPrefix)] = values[0]
		}
	}
	return md
}

func (s *Server) handleList(c *gin.Context) {
	path := pathParam(c)
	// An empty path lists the whole store.
	if path != "" {
		if err := validation.ValidateObjectPath(path); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	latest, _ := strconv.ParseBool(c.Query("latest"))
	stubs, err := s.store.Listing(c.Request.Context(), path, metadataFilter(c), latest)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"objects": stubs})
}

func (s *Server) handleGet(c *gin.Context) {
	path := pathParam(c)
	if err := validation.ValidateObjectPath(path); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ts := TimestampLatest
	if raw := c.Query("ts"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad ts"})
			return
		}
		ts = parsed
	}
	rec, err := s.store.find(c.Request.Context(), path, ts, core.Activity{}, metadataFilter(c))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	mdJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header(headerValidFrom, strconv.FormatInt(rec.ValidFrom, 10))
	c.Header(headerValidUntil, strconv.FormatInt(rec.ValidUntil, 10))
	c.Header(headerCreated, strconv.FormatInt(rec.Created, 10))
	c.Header(headerMetadata, string(mdJSON))
	c.Data(http.StatusOK, "application/octet-stream", rec.Payload)
}

func (s *Server) handlePut(c *gin.Context) {
	path := pathParam(c)
	if err := validation.ValidateObjectPath(path); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec := &objectRecord{Payload: payload, Metadata: map[string]string{}}
	if raw := c.GetHeader(headerMetadata); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Metadata); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad metadata header"})
			return
		}
	}
	rec.ValidFrom, _ = strconv.ParseInt(c.GetHeader(headerValidFrom), 10, 64)
	rec.ValidUntil, _ = strconv.ParseInt(c.GetHeader(headerValidUntil), 10, 64)

	if err := s.store.store(c.Request.Context(), path, rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if s.logger != nil {
		s.logger.Debug("object stored",
			slog.String("path", path),
			slog.Int64("created", rec.Created))
	}
	c.JSON(http.StatusCreated, gin.H{"id": uuid.NewString(), "created": rec.Created})
}
