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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
)

// BadgerConfig holds configuration for the embedded object store.
type BadgerConfig struct {
	// Path is the directory for database files. Required unless InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence). For testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. Nil disables it.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultBadgerConfig returns production defaults.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns a configuration for tests: in-memory, no
// sync, no GC.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerDatabase is the embedded Database implementation. Object versions
// are keyed by path and creation time so that a prefix scan visits versions
// in creation order.
//
// Thread Safety: safe for concurrent use.
type BadgerDatabase struct {
	db     *badger.DB
	logger *slog.Logger
	gcStop chan struct{}
	gcDone chan struct{}

	// now is swappable in tests to control Created stamps.
	now func() int64

	// lastCreated guarantees strictly increasing Created stamps even when
	// two stores land in the same millisecond.
	mu          sync.Mutex
	lastCreated int64
}

// keyPrefix separates object keys from any future key families.
const keyPrefix = "obj|"

// objectKey builds the key of one version: obj|<path>|<created, zero-padded
// so lexical order equals numeric order>.
func objectKey(path string, created int64) []byte {
	return []byte(fmt.Sprintf("%s%s|%020d", keyPrefix, path, created))
}

func pathScanPrefix(path string) []byte {
	return []byte(keyPrefix + path + "|")
}

// pathFromKey recovers the object path from a stored key.
func pathFromKey(key []byte) string {
	s := strings.TrimPrefix(string(key), keyPrefix)
	idx := strings.LastIndex(s, "|")
	if idx < 0 {
		return s
	}
	return s[:idx]
}

// OpenBadger opens the embedded object store.
func OpenBadger(cfg BadgerConfig) (*BadgerDatabase, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	b := &BadgerDatabase{
		db:     db,
		logger: cfg.Logger,
		now:    func() int64 { return time.Now().UnixMilli() },
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		b.gcStop = make(chan struct{})
		b.gcDone = make(chan struct{})
		go b.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return b, nil
}

func (b *BadgerDatabase) runGC(interval time.Duration, ratio float64) {
	defer close(b.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.gcStop:
			return
		case <-ticker.C:
			err := b.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && b.logger != nil {
				b.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// Close stops garbage collection and closes the database.
func (b *BadgerDatabase) Close() error {
	if b.gcStop != nil {
		close(b.gcStop)
		<-b.gcDone
	}
	return b.db.Close()
}

// store writes a stamped record under its path.
func (b *BadgerDatabase) store(ctx context.Context, path string, rec *objectRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	now := b.now()
	if now <= b.lastCreated {
		now = b.lastCreated + 1
	}
	b.lastCreated = now
	b.mu.Unlock()
	rec.stamp(now)
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(objectKey(path, rec.Created), data)
	})
	if err != nil {
		storesTotal.WithLabelValues("badger", "error").Inc()
		return core.NewPathError("store", path, err)
	}
	storesTotal.WithLabelValues("badger", "ok").Inc()
	return nil
}

// find returns the newest record at path satisfying ts and the filters.
func (b *BadgerDatabase) find(ctx context.Context, path string, ts int64, activity core.Activity, metadata map[string]string) (*objectRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timer := prometheus.NewTimer(operationDuration.WithLabelValues("badger", "retrieve"))
	defer timer.ObserveDuration()

	provenance := strings.SplitN(path, "/", 2)[0]
	var best *objectRecord
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := pathScanPrefix(path)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec *objectRecord
			err := it.Item().Value(func(val []byte) error {
				var e error
				rec, e = decodeRecord(val)
				return e
			})
			if err != nil {
				return err
			}
			if !rec.covers(ts) || !rec.matchesFilter(activity, metadata, provenance) {
				continue
			}
			if best == nil || rec.Created > best.Created {
				best = rec
			}
		}
		return nil
	})
	if err != nil {
		retrievalsTotal.WithLabelValues("badger", "error").Inc()
		return nil, core.NewPathError("retrieve", path, err)
	}
	if best == nil {
		retrievalsTotal.WithLabelValues("badger", "miss").Inc()
		return nil, core.NewPathError("retrieve", path, core.ErrNotFound)
	}
	retrievalsTotal.WithLabelValues("badger", "hit").Inc()
	return best, nil
}

// RetrieveMO implements Database.
func (b *BadgerDatabase) RetrieveMO(ctx context.Context, path, name string, ts int64, activity core.Activity, metadata map[string]string) (*core.MonitorObject, error) {
	fullPath := path
	if name != "" {
		fullPath = path + "/" + name
	}
	rec, err := b.find(ctx, fullPath, ts, activity, metadata)
	if err != nil {
		return nil, err
	}
	return moFromRecord(fullPath, rec)
}

// RetrieveQO implements Database.
func (b *BadgerDatabase) RetrieveQO(ctx context.Context, fullPath string, ts int64, activity core.Activity, metadata map[string]string) (*core.QualityObject, error) {
	rec, err := b.find(ctx, fullPath, ts, activity, metadata)
	if err != nil {
		return nil, err
	}
	return qoFromRecord(fullPath, rec)
}

// GetLatestObjectValidity implements Database.
func (b *BadgerDatabase) GetLatestObjectValidity(ctx context.Context, fullPath string, metadata map[string]string) (core.ValidityInterval, error) {
	rec, err := b.find(ctx, fullPath, TimestampLatest, core.Activity{}, metadata)
	if err != nil {
		return core.InvalidValidityInterval(), err
	}
	return rec.validity(), nil
}

// StoreMO implements Database.
func (b *BadgerDatabase) StoreMO(ctx context.Context, mo *core.MonitorObject) error {
	rec, err := recordFromMO(mo)
	if err != nil {
		return err
	}
	return b.store(ctx, mo.FullPath(), rec)
}

// StoreQO implements Database.
func (b *BadgerDatabase) StoreQO(ctx context.Context, qo *core.QualityObject) error {
	rec, err := recordFromQO(qo)
	if err != nil {
		return err
	}
	return b.store(ctx, qo.FullPath(), rec)
}

// RetrieveRaw implements Database.
func (b *BadgerDatabase) RetrieveRaw(ctx context.Context, fullPath string, ts int64, metadata map[string]string) ([]byte, map[string]string, error) {
	rec, err := b.find(ctx, fullPath, ts, core.Activity{}, metadata)
	if err != nil {
		return nil, nil, err
	}
	return rec.Payload, rec.Metadata, nil
}

// Listing implements Database.
func (b *BadgerDatabase) Listing(ctx context.Context, path string, metadata map[string]string, latestOnly bool) ([]ObjectStub, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Scan everything under path: the exact path plus deeper entries.
	prefix := []byte(keyPrefix + path)
	latest := map[string]*objectRecord{}
	var all []ObjectStub
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			entryPath := pathFromKey(it.Item().Key())
			if entryPath != path && !strings.HasPrefix(entryPath, path+"/") {
				continue
			}
			var rec *objectRecord
			err := it.Item().Value(func(val []byte) error {
				var e error
				rec, e = decodeRecord(val)
				return e
			})
			if err != nil {
				return err
			}
			if !core.MetadataMatches(rec.Metadata, metadata) {
				continue
			}
			if latestOnly {
				if prev, ok := latest[entryPath]; !ok || rec.Created > prev.Created {
					latest[entryPath] = rec
				}
				continue
			}
			all = append(all, rec.stub(entryPath))
		}
		return nil
	})
	if err != nil {
		return nil, core.NewPathError("list", path, err)
	}
	if latestOnly {
		for p, rec := range latest {
			all = append(all, rec.stub(p))
		}
	}
	return all, nil
}
