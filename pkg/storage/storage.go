package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/vjranagit/idealfit/pkg/types"
)

// ErrNotFound is returned when a table or result set is not stored
var ErrNotFound = errors.New("storage: not found")

// Storage defines the contract for persisting fit runs.
// Saving under an existing name replaces the previous content.
type Storage interface {
	// SaveTable stores a table under its name
	SaveTable(ctx context.Context, kind Kind, table *types.Table) error

	// LoadTable reads a table back by name
	LoadTable(ctx context.Context, name string) (*types.Table, error)

	// SaveResults stores classified test points under a name
	SaveResults(ctx context.Context, name string, results []types.PointResult) error

	// LoadResults reads classified test points back by name
	LoadResults(ctx context.Context, name string) ([]types.PointResult, error)

	// Tables lists stored tables of a kind; an empty kind lists all
	Tables(ctx context.Context, kind Kind) []TableInfo

	// Close closes the storage
	Close() error
}

// Config holds storage configuration
type Config struct {
	Path             string
	CompressionLevel int
	Codec            string
	InMemory         bool
}

// DefaultConfig returns default storage configuration
func DefaultConfig() *Config {
	return &Config{
		Path:             "./data",
		CompressionLevel: 3,
		Codec:            CodecZstd,
	}
}

var catalogKey = []byte("meta/catalog")

// badgerStorage implements Storage using BadgerDB
type badgerStorage struct {
	cfg        *Config
	db         *badger.DB
	catalog    *Catalog
	compressor *Compressor
	mu         sync.RWMutex
}

// NewStorage creates a new storage instance
func NewStorage(cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.Path, "badger"))
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil // Disable BadgerDB logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	compressor, err := NewCompressor(cfg.Codec, cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	s := &badgerStorage{
		cfg:        cfg,
		db:         db,
		catalog:    NewCatalog(),
		compressor: compressor,
	}

	if err := s.loadCatalog(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

type columnPayload struct {
	Name       string
	Count      int
	Compressed []byte
}

type resultsPayload struct {
	Count      int
	X          []byte
	Y          []byte
	Deviation  []byte
	Candidates []string
	Errors     []string
}

// SaveTable implements Storage.SaveTable
func (s *badgerStorage) SaveTable(ctx context.Context, kind Kind, table *types.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := table.Validate(); err != nil {
		return fmt.Errorf("refusing to store table: %w", err)
	}
	info := TableInfo{
		Name:    table.Name,
		Kind:    kind,
		Columns: table.ColumnNames(),
		Rows:    table.Rows(),
	}
	if err := info.checkLimits(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := fingerprint(table.Name)
	prefix := tablePrefix(id)

	entries := make(map[string][]byte, len(table.Columns))
	for i, col := range table.Columns {
		compressed, err := s.compressor.CompressValues(col.Values)
		if err != nil {
			return fmt.Errorf("failed to compress column %q: %w", col.Name, err)
		}

		payload, err := json.Marshal(&columnPayload{
			Name:       col.Name,
			Count:      col.Len(),
			Compressed: compressed,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal column %q: %w", col.Name, err)
		}
		entries[string(columnKey(id, uint32(i)))] = payload
	}

	if err := s.replace(prefix, entries); err != nil {
		return fmt.Errorf("failed to write table %q: %w", table.Name, err)
	}

	s.catalog.Put(info)
	return s.saveCatalog()
}

// LoadTable implements Storage.LoadTable
func (s *badgerStorage) LoadTable(ctx context.Context, name string) (*types.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	table := &types.Table{Name: name}
	err := s.scan(tablePrefix(fingerprint(name)), func(val []byte) error {
		var payload columnPayload
		if err := json.Unmarshal(val, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal column: %w", err)
		}

		values, err := s.compressor.DecompressValues(payload.Compressed, payload.Count)
		if err != nil {
			return fmt.Errorf("column %q: %w", payload.Name, err)
		}
		table.Columns = append(table.Columns, types.Series{Name: payload.Name, Values: values})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("table %q: %w", name, ErrNotFound)
	}
	return table, nil
}

// SaveResults implements Storage.SaveResults
func (s *badgerStorage) SaveResults(ctx context.Context, name string, results []types.PointResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info := TableInfo{
		Name:    name,
		Kind:    KindResults,
		Columns: []string{"x", "y", "ideal_function", "deviation"},
		Rows:    len(results),
	}
	if err := info.checkLimits(); err != nil {
		return err
	}

	xs := make([]float64, len(results))
	ys := make([]float64, len(results))
	devs := make([]float64, len(results))
	payload := resultsPayload{
		Count:      len(results),
		Candidates: make([]string, len(results)),
		Errors:     make([]string, len(results)),
	}
	for i, r := range results {
		xs[i], ys[i], devs[i] = r.Point.X, r.Point.Y, r.Deviation
		payload.Candidates[i] = r.Candidate
		payload.Errors[i] = r.Err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if payload.X, err = s.compressor.CompressValues(xs); err != nil {
		return fmt.Errorf("failed to compress x: %w", err)
	}
	if payload.Y, err = s.compressor.CompressValues(ys); err != nil {
		return fmt.Errorf("failed to compress y: %w", err)
	}
	if payload.Deviation, err = s.compressor.CompressValues(devs); err != nil {
		return fmt.Errorf("failed to compress deviation: %w", err)
	}

	data, err := json.Marshal(&payload)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	key := resultsKey(fingerprint(name))
	if err := s.replace(key, map[string][]byte{string(key): data}); err != nil {
		return fmt.Errorf("failed to write results %q: %w", name, err)
	}

	s.catalog.Put(info)
	return s.saveCatalog()
}

// LoadResults implements Storage.LoadResults
func (s *badgerStorage) LoadResults(ctx context.Context, name string) ([]types.PointResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(resultsKey(fingerprint(name)))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("results %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var payload resultsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}

	xs, err := s.compressor.DecompressValues(payload.X, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("x: %w", err)
	}
	ys, err := s.compressor.DecompressValues(payload.Y, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("y: %w", err)
	}
	devs, err := s.compressor.DecompressValues(payload.Deviation, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("deviation: %w", err)
	}

	results := make([]types.PointResult, payload.Count)
	for i := range results {
		results[i] = types.PointResult{
			Point:     types.QueryPoint{X: xs[i], Y: ys[i]},
			Candidate: payload.Candidates[i],
			Matched:   payload.Candidates[i] != "",
			Deviation: devs[i],
			Err:       payload.Errors[i],
		}
	}
	return results, nil
}

// Tables implements Storage.Tables
func (s *badgerStorage) Tables(_ context.Context, kind Kind) []TableInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.Find(kind)
}

// Close implements Storage.Close
func (s *badgerStorage) Close() error {
	if s.compressor != nil {
		s.compressor.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// replace deletes every key under prefix and writes entries in one transaction
func (s *badgerStorage) replace(prefix []byte, entries map[string][]byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for k, v := range entries {
			if err := txn.Set([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// scan calls fn for every value under prefix in key order
func (s *badgerStorage) scan(prefix []byte, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *badgerStorage) loadCatalog() error {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(catalogKey)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}

	catalog, err := DeserializeCatalog(data)
	if err != nil {
		return fmt.Errorf("failed to decode catalog: %w", err)
	}
	s.catalog = catalog
	return nil
}

// saveCatalog persists the catalog (must hold lock)
func (s *badgerStorage) saveCatalog() error {
	data, err := s.catalog.Serialize()
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(catalogKey, data)
	})
}

// tablePrefix returns the key prefix shared by all columns of a table
func tablePrefix(id uint64) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString("col/")
	binary.Write(buf, binary.BigEndian, id)
	buf.WriteByte('/')
	return buf.Bytes()
}

// columnKey generates the key of one column; big endian ordinals keep
// columns in table order during iteration
func columnKey(id uint64, ordinal uint32) []byte {
	buf := bytes.NewBuffer(tablePrefix(id))
	binary.Write(buf, binary.BigEndian, ordinal)
	return buf.Bytes()
}

// resultsKey generates the key of a stored result set
func resultsKey(id uint64) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString("res/")
	binary.Write(buf, binary.BigEndian, id)
	return buf.Bytes()
}
