// Package catalog persists and reloads database and table metadata: the
// textual db.meta file the spec calls for, in place of the teacher's JSON
// table-meta convention (one JSON file per table under engine/db.go).
package catalog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tuannm99/novacore/internal/record"
)

// Catalog is the full set of table descriptors for one database directory.
type Catalog struct {
	DBName string
	Tables []record.Table
}

// TableByName finds a table descriptor by name.
func (c *Catalog) TableByName(name string) (*record.Table, bool) {
	for i := range c.Tables {
		if c.Tables[i].Name == name {
			return &c.Tables[i], true
		}
	}
	return nil, false
}

// AddTable registers a new table descriptor, rejecting a duplicate name.
func (c *Catalog) AddTable(t record.Table) error {
	if _, exists := c.TableByName(t.Name); exists {
		return fmt.Errorf("catalog: table %q already exists", t.Name)
	}
	c.Tables = append(c.Tables, t)
	return nil
}

// RemoveTable deletes a table descriptor by name. A missing name is a no-op.
func (c *Catalog) RemoveTable(name string) {
	for i := range c.Tables {
		if c.Tables[i].Name == name {
			c.Tables = append(c.Tables[:i], c.Tables[i+1:]...)
			return
		}
	}
}

// metaPath is the fixed location of the catalog file within a database
// directory, per the spec's <db>/db.meta convention.
func metaPath(dbDir string) string {
	return filepath.Join(dbDir, "db.meta")
}

// Load reads and parses db.meta out of dbDir. A missing file is not an
// error: it means a brand-new, empty database.
func Load(dbDir string) (*Catalog, error) {
	f, err := os.Open(metaPath(dbDir))
	if os.IsNotExist(err) {
		return &Catalog{DBName: filepath.Base(dbDir)}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cat := &Catalog{}
	var cur *record.Table

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "database":
			cat.DBName = fields[1]
		case "table":
			if cur != nil {
				cat.Tables = append(cat.Tables, *cur)
			}
			cur = &record.Table{Name: fields[1]}
		case "column":
			if cur == nil {
				return nil, fmt.Errorf("catalog: column line outside any table: %q", line)
			}
			col, err := parseColumn(cur.Name, fields[1:])
			if err != nil {
				return nil, err
			}
			col.Offset = cur.RowSize()
			cur.Cols = append(cur.Cols, col)
		case "index":
			if cur == nil {
				return nil, fmt.Errorf("catalog: index line outside any table: %q", line)
			}
			idx, err := parseIndex(cur, fields[1:])
			if err != nil {
				return nil, err
			}
			cur.Indexes = append(cur.Indexes, idx)
		case "endtable":
			if cur != nil {
				cat.Tables = append(cat.Tables, *cur)
				cur = nil
			}
		default:
			return nil, fmt.Errorf("catalog: unrecognised db.meta directive %q", fields[0])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if cur != nil {
		cat.Tables = append(cat.Tables, *cur)
	}
	return cat, nil
}

func parseColumn(tabName string, fields []string) (record.Column, error) {
	if len(fields) < 3 {
		return record.Column{}, fmt.Errorf("catalog: malformed column directive %v", fields)
	}
	name, typeName, lenStr := fields[0], fields[1], fields[2]
	colType, err := parseColumnType(typeName)
	if err != nil {
		return record.Column{}, err
	}
	length, err := strconv.Atoi(lenStr)
	if err != nil {
		return record.Column{}, fmt.Errorf("catalog: bad column length %q: %w", lenStr, err)
	}
	hasIndex := len(fields) > 3 && fields[3] == "indexed"
	return record.Column{TabName: tabName, Name: name, Type: colType, Len: length, HasIndex: hasIndex}, nil
}

func parseColumnType(s string) (record.ColumnType, error) {
	switch s {
	case "INT":
		return record.ColInt, nil
	case "FLOAT":
		return record.ColFloat, nil
	case "STRING":
		return record.ColString, nil
	default:
		return 0, fmt.Errorf("catalog: unknown column type %q", s)
	}
}

func parseIndex(t *record.Table, fields []string) (record.Index, error) {
	if len(fields) < 2 {
		return record.Index{}, fmt.Errorf("catalog: malformed index directive %v", fields)
	}
	name := fields[0]
	cols := strings.Split(fields[1], ",")
	return record.NewIndex(t, name, cols)
}

// Flush writes the catalog back to dbDir's db.meta, atomically.
func (c *Catalog) Flush(dbDir string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "database %s\n", c.DBName)
	for _, t := range c.Tables {
		fmt.Fprintf(&b, "table %s\n", t.Name)
		for _, col := range t.Cols {
			indexedSuffix := ""
			if col.HasIndex {
				indexedSuffix = " indexed"
			}
			fmt.Fprintf(&b, "column %s %s %d%s\n", col.Name, col.Type.String(), col.Len, indexedSuffix)
		}
		for _, idx := range t.Indexes {
			fmt.Fprintf(&b, "index %s %s\n", idx.Name, strings.Join(idx.Cols, ","))
		}
		b.WriteString("endtable\n")
	}

	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return err
	}
	return writeFileAtomic(metaPath(dbDir), []byte(b.String()), 0o644)
}

// writeFileAtomic writes data to path via a temp file + rename, so a crash
// mid-write never leaves a half-written db.meta behind.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	ok = true
	return nil
}
