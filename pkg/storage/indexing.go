package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Kind classifies a stored table by the role it plays in a run
type Kind string

// Table kinds
const (
	KindTraining Kind = "training"
	KindIdeal    Kind = "ideal"
	KindSelected Kind = "selected"
	KindResults  Kind = "results"
)

// ErrCatalogLimit is returned for entries the catalog encoding cannot hold
var ErrCatalogLimit = errors.New("storage: catalog limit exceeded")

// TableInfo describes one stored table or result set
type TableInfo struct {
	ID      uint64   `json:"id"`
	Name    string   `json:"name"`
	Kind    Kind     `json:"kind"`
	Columns []string `json:"columns"`
	Rows    int      `json:"rows"`
}

// checkLimits reports names and column counts wider than the uint16 length prefixes
func (info *TableInfo) checkLimits() error {
	if len(info.Columns) > math.MaxUint16 {
		return fmt.Errorf("%w: table %.64q has %d columns (max %d)", ErrCatalogLimit, info.Name, len(info.Columns), math.MaxUint16)
	}
	if len(info.Name) > math.MaxUint16 || len(info.Kind) > math.MaxUint16 {
		return fmt.Errorf("%w: table name %.64q is %d bytes (max %d)", ErrCatalogLimit, info.Name, len(info.Name), math.MaxUint16)
	}
	for _, col := range info.Columns {
		if len(col) > math.MaxUint16 {
			return fmt.Errorf("%w: column %.64q of table %.64q is %d bytes (max %d)", ErrCatalogLimit, col, info.Name, len(col), math.MaxUint16)
		}
	}
	return nil
}

// Catalog indexes stored tables by fingerprint and by kind
type Catalog struct {
	tables map[uint64]*TableInfo
	// Inverted index: kind -> table IDs
	kindIndex map[Kind][]uint64
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		tables:    make(map[uint64]*TableInfo),
		kindIndex: make(map[Kind][]uint64),
	}
}

// fingerprint identifies a table by name
func fingerprint(name string) uint64 {
	return xxhash.Sum64String(name)
}

// Put adds or replaces a table entry and returns its ID
func (c *Catalog) Put(info TableInfo) uint64 {
	info.ID = fingerprint(info.Name)

	if old, exists := c.tables[info.ID]; exists {
		c.kindIndex[old.Kind] = remove(c.kindIndex[old.Kind], info.ID)
	}

	c.tables[info.ID] = &info
	c.kindIndex[info.Kind] = append(c.kindIndex[info.Kind], info.ID)

	return info.ID
}

// Get retrieves a table entry by name
func (c *Catalog) Get(name string) (TableInfo, bool) {
	info, ok := c.tables[fingerprint(name)]
	if !ok {
		return TableInfo{}, false
	}
	return *info, true
}

// Find lists tables of the given kind sorted by name. An empty kind lists everything.
func (c *Catalog) Find(kind Kind) []TableInfo {
	var ids []uint64
	if kind == "" {
		ids = make([]uint64, 0, len(c.tables))
		for id := range c.tables {
			ids = append(ids, id)
		}
	} else {
		ids = c.kindIndex[kind]
	}

	result := make([]TableInfo, 0, len(ids))
	for _, id := range ids {
		result = append(result, *c.tables[id])
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result
}

// Len returns the number of catalogued tables
func (c *Catalog) Len() int {
	return len(c.tables)
}

func remove(ids []uint64, id uint64) []uint64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Serialize serializes the catalog to bytes
func (c *Catalog) Serialize() ([]byte, error) {
	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, uint32(len(c.tables))); err != nil {
		return nil, err
	}

	for _, info := range c.Find("") {
		if err := info.checkLimits(); err != nil {
			return nil, err
		}
		if err := writeString(buf, info.Name); err != nil {
			return nil, err
		}
		if err := writeString(buf, string(info.Kind)); err != nil {
			return nil, err
		}
		if err := binary.Write(buf, binary.LittleEndian, uint32(info.Rows)); err != nil {
			return nil, err
		}
		if err := binary.Write(buf, binary.LittleEndian, uint16(len(info.Columns))); err != nil {
			return nil, err
		}
		for _, col := range info.Columns {
			if err := writeString(buf, col); err != nil {
				return nil, err
			}
		}
	}

	return buf.Bytes(), nil
}

// DeserializeCatalog rebuilds a catalog written by Serialize
func DeserializeCatalog(data []byte) (*Catalog, error) {
	r := bytes.NewReader(data)
	c := NewCatalog()

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("catalog header: %w", err)
	}

	for i := uint32(0); i < count; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		kind, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}

		var rows uint32
		var ncols uint16
		if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &ncols); err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}

		cols := make([]string, ncols)
		for j := range cols {
			if cols[j], err = readString(r); err != nil {
				return nil, fmt.Errorf("catalog entry %d: %w", i, err)
			}
		}

		c.Put(TableInfo{Name: name, Kind: Kind(kind), Columns: cols, Rows: int(rows)})
	}

	return c, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("%w: string of %d bytes", ErrCatalogLimit, len(s))
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := buf.WriteString(s)
	return err
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
