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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
)

var clientTracer = otel.Tracer("qcpost/repository/client")

// ClientConfig configures the HTTP object-store client.
type ClientConfig struct {
	// BaseURL is the store endpoint, e.g. "http://ccdb:8080".
	BaseURL string

	// Timeout bounds each operation. Default: 10 s.
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing calls. 0 disables throttling.
	RequestsPerSecond float64

	// Burst is the limiter burst size; default 1 when throttled.
	Burst int

	// HTTPClient overrides the transport; nil uses a default client.
	HTTPClient *http.Client
}

// Client speaks the object-store wire contract. It implements Database.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewClient builds a client for the store at cfg.BaseURL.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Client{base: cfg.BaseURL, http: httpClient, limiter: limiter, timeout: timeout}
}

// Close implements Database; the client holds no resources to release.
func (c *Client) Close() error { return nil }

func (c *Client) objectURL(kind, path string, query url.Values) string {
	u := fmt.Sprintf("%s/api/v1/%s/%s", c.base, kind, path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func queryFor(ts int64, metadata map[string]string) url.Values {
	q := url.Values{}
	if ts != TimestampLatest {
		q.Set("ts", strconv.FormatInt(ts, 10))
	}
	for k, v := range metadata {
		q.Set(metadataQueryPrefix+k, v)
	}
	return q
}

// fetch performs one GET against the object endpoint and rebuilds the
// stored record from body and headers.
func (c *Client) fetch(ctx context.Context, fullPath string, ts int64, metadata map[string]string) (*objectRecord, error) {
	ctx, span := clientTracer.Start(ctx, "repository.fetch",
		trace.WithAttributes(attribute.String("object.path", fullPath)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	timer := prometheus.NewTimer(operationDuration.WithLabelValues("http", "retrieve"))
	defer timer.ObserveDuration()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.objectURL("object", fullPath, queryFor(ts, metadata)), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		retrievalsTotal.WithLabelValues("http", "error").Inc()
		if ctx.Err() != nil {
			return nil, core.NewPathError("retrieve", fullPath, core.ErrTimeout)
		}
		return nil, core.NewPathError("retrieve", fullPath, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		retrievalsTotal.WithLabelValues("http", "miss").Inc()
		return nil, core.NewPathError("retrieve", fullPath, core.ErrNotFound)
	default:
		retrievalsTotal.WithLabelValues("http", "error").Inc()
		return nil, core.NewPathError("retrieve", fullPath,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewPathError("retrieve", fullPath, err)
	}
	rec := &objectRecord{Payload: payload, Metadata: map[string]string{}}
	if raw := resp.Header.Get(headerMetadata); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Metadata); err != nil {
			return nil, core.NewPathError("retrieve", fullPath, fmt.Errorf("bad metadata header: %w", err))
		}
	}
	rec.ValidFrom, _ = strconv.ParseInt(resp.Header.Get(headerValidFrom), 10, 64)
	rec.ValidUntil, _ = strconv.ParseInt(resp.Header.Get(headerValidUntil), 10, 64)
	rec.Created, _ = strconv.ParseInt(resp.Header.Get(headerCreated), 10, 64)
	retrievalsTotal.WithLabelValues("http", "hit").Inc()
	return rec, nil
}

// upload performs one POST against the object endpoint.
func (c *Client) upload(ctx context.Context, fullPath string, rec *objectRecord) error {
	ctx, span := clientTracer.Start(ctx, "repository.upload",
		trace.WithAttributes(attribute.String("object.path", fullPath)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	timer := prometheus.NewTimer(operationDuration.WithLabelValues("http", "store"))
	defer timer.ObserveDuration()

	mdJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.objectURL("object", fullPath, nil), bytes.NewReader(rec.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(headerValidFrom, strconv.FormatInt(rec.ValidFrom, 10))
	req.Header.Set(headerValidUntil, strconv.FormatInt(rec.ValidUntil, 10))
	req.Header.Set(headerMetadata, string(mdJSON))

	resp, err := c.http.Do(req)
	if err != nil {
		storesTotal.WithLabelValues("http", "error").Inc()
		if ctx.Err() != nil {
			return core.NewPathError("store", fullPath, core.ErrTimeout)
		}
		return core.NewPathError("store", fullPath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		storesTotal.WithLabelValues("http", "error").Inc()
		return core.NewPathError("store", fullPath,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	storesTotal.WithLabelValues("http", "ok").Inc()
	return nil
}

// RetrieveMO implements Database.
func (c *Client) RetrieveMO(ctx context.Context, path, name string, ts int64, activity core.Activity, metadata map[string]string) (*core.MonitorObject, error) {
	fullPath := path
	if name != "" {
		fullPath = path + "/" + name
	}
	filter := core.MergeMetadata(nil, metadata)
	filter = core.MergeMetadata(filter, activity.ToMetadata(false))
	rec, err := c.fetch(ctx, fullPath, ts, filter)
	if err != nil {
		return nil, err
	}
	return moFromRecord(fullPath, rec)
}

// RetrieveQO implements Database.
func (c *Client) RetrieveQO(ctx context.Context, fullPath string, ts int64, activity core.Activity, metadata map[string]string) (*core.QualityObject, error) {
	filter := core.MergeMetadata(nil, metadata)
	filter = core.MergeMetadata(filter, activity.ToMetadata(false))
	rec, err := c.fetch(ctx, fullPath, ts, filter)
	if err != nil {
		return nil, err
	}
	return qoFromRecord(fullPath, rec)
}

// GetLatestObjectValidity implements Database.
func (c *Client) GetLatestObjectValidity(ctx context.Context, fullPath string, metadata map[string]string) (core.ValidityInterval, error) {
	rec, err := c.fetch(ctx, fullPath, TimestampLatest, metadata)
	if err != nil {
		return core.InvalidValidityInterval(), err
	}
	return rec.validity(), nil
}

// StoreMO implements Database.
func (c *Client) StoreMO(ctx context.Context, mo *core.MonitorObject) error {
	rec, err := recordFromMO(mo)
	if err != nil {
		return err
	}
	return c.upload(ctx, mo.FullPath(), rec)
}

// StoreQO implements Database.
func (c *Client) StoreQO(ctx context.Context, qo *core.QualityObject) error {
	rec, err := recordFromQO(qo)
	if err != nil {
		return err
	}
	return c.upload(ctx, qo.FullPath(), rec)
}

// RetrieveRaw implements Database.
func (c *Client) RetrieveRaw(ctx context.Context, fullPath string, ts int64, metadata map[string]string) ([]byte, map[string]string, error) {
	rec, err := c.fetch(ctx, fullPath, ts, metadata)
	if err != nil {
		return nil, nil, err
	}
	return rec.Payload, rec.Metadata, nil
}

// Listing implements Database.
func (c *Client) Listing(ctx context.Context, path string, metadata map[string]string, latestOnly bool) ([]ObjectStub, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	q := queryFor(TimestampLatest, metadata)
	if latestOnly {
		q.Set("latest", "true")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.objectURL("list", path, q), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, core.NewPathError("list", path, core.ErrTimeout)
		}
		return nil, core.NewPathError("list", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, core.NewPathError("list", path,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	var out struct {
		Objects []ObjectStub `json:"objects"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, core.NewPathError("list", path, err)
	}
	return out.Objects, nil
}
