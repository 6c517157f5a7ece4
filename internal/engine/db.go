// Package engine wires the storage, lock, transaction and index layers
// together into one database handle: the root-level façade every executor
// and the shell command ultimately sit on top of.
package engine

import (
	"errors"
	"fmt"

	"github.com/tuannm99/novacore/internal/bufferpool"
	"github.com/tuannm99/novacore/internal/catalog"
	"github.com/tuannm99/novacore/internal/exec"
	"github.com/tuannm99/novacore/internal/heap"
	"github.com/tuannm99/novacore/internal/index"
	"github.com/tuannm99/novacore/internal/lock"
	"github.com/tuannm99/novacore/internal/record"
	"github.com/tuannm99/novacore/internal/storage"
	"github.com/tuannm99/novacore/internal/txn"
)

var (
	ErrDatabaseClosed = errors.New("novasql: database is closed")
	ErrTableExists     = errors.New("novasql: table already exists")
	ErrTableNotFound   = errors.New("novasql: table not found")
)

// openTable is one table's live handle set: its heap file and every
// secondary index declared on it, opened on first use and cached for the
// life of the Database.
type openTable struct {
	desc    record.Table
	rf      *heap.RmFile
	indexes map[string]*index.Handle // index name -> handle
}

// Database is the root handle on one on-disk database directory: catalog,
// heap files, the lock table and the transaction manager, all sharing one
// StorageManager.
type Database struct {
	DataDir string
	SM      *storage.StorageManager
	Cat     *catalog.Catalog
	Locks   *lock.Manager
	Txns    *txn.Manager

	tables map[string]*openTable
	closed bool
}

// Open loads (or initialises) the database at dataDir: its catalog, its
// transaction log, and a fresh lock table.
func Open(dataDir string) (*Database, error) {
	cat, err := catalog.Load(dataDir)
	if err != nil {
		return nil, err
	}
	log, err := txn.OpenLog(dataDir)
	if err != nil {
		return nil, err
	}
	locks := lock.NewManager()
	return &Database{
		DataDir: dataDir,
		SM:      storage.NewStorageManager(),
		Cat:     cat,
		Locks:   locks,
		Txns:    txn.NewManager(locks, log),
		tables:  make(map[string]*openTable),
	}, nil
}

func (db *Database) heapFileSet(tabName string) storage.FileSet {
	return storage.LocalFileSet{Dir: db.DataDir, Base: tabName}
}

func (db *Database) indexFileSet(tabName, indexName string) storage.FileSet {
	return storage.LocalFileSet{Dir: db.DataDir, Base: tabName + "." + indexName}
}

// CreateTable registers table in the catalog, formats its heap file, and
// formats a file for each of its declared indexes.
func (db *Database) CreateTable(table record.Table) error {
	if db.closed {
		return ErrDatabaseClosed
	}
	if _, exists := db.Cat.TableByName(table.Name); exists {
		return fmt.Errorf("%w: %s", ErrTableExists, table.Name)
	}

	rf, err := heap.CreateFile(db.SM, db.heapFileSet(table.Name), bufferpool.DefaultCapacity, table.RowSize())
	if err != nil {
		return err
	}

	ot := &openTable{desc: table, rf: rf, indexes: make(map[string]*index.Handle)}
	for _, idxDesc := range table.Indexes {
		bp := bufferpool.NewPool(db.SM, db.indexFileSet(table.Name, idxDesc.Name), bufferpool.DefaultCapacity)
		ot.indexes[idxDesc.Name] = index.Create(db.SM, db.indexFileSet(table.Name, idxDesc.Name), bp)
	}
	db.tables[table.Name] = ot

	if err := db.Cat.AddTable(table); err != nil {
		return err
	}
	return db.Cat.Flush(db.DataDir)
}

// openTableHandle returns a table's live handle, opening its heap file and
// index files on first access.
func (db *Database) openTableHandle(name string) (*openTable, error) {
	if ot, ok := db.tables[name]; ok {
		return ot, nil
	}
	desc, ok := db.Cat.TableByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}

	rf, err := heap.OpenFile(db.SM, db.heapFileSet(name), bufferpool.DefaultCapacity)
	if err != nil {
		return nil, err
	}
	ot := &openTable{desc: *desc, rf: rf, indexes: make(map[string]*index.Handle)}
	for _, idxDesc := range desc.Indexes {
		bp := bufferpool.NewPool(db.SM, db.indexFileSet(name, idxDesc.Name), bufferpool.DefaultCapacity)
		h, err := index.Open(db.SM, db.indexFileSet(name, idxDesc.Name), bp)
		if err != nil {
			return nil, err
		}
		ot.indexes[idxDesc.Name] = h
	}
	db.tables[name] = ot
	return ot, nil
}

// Table returns a table's descriptor and heap file handle for building
// executors against it.
func (db *Database) Table(name string) (*record.Table, *heap.RmFile, error) {
	if db.closed {
		return nil, nil, ErrDatabaseClosed
	}
	ot, err := db.openTableHandle(name)
	if err != nil {
		return nil, nil, err
	}
	return &ot.desc, ot.rf, nil
}

// IndexBindings returns every secondary index opened for a table, in the
// order its descriptor declares them, ready to hand to exec.Delete/Update.
func (db *Database) IndexBindings(name string) ([]exec.IndexBinding, error) {
	ot, err := db.openTableHandle(name)
	if err != nil {
		return nil, err
	}
	out := make([]exec.IndexBinding, 0, len(ot.desc.Indexes))
	for _, idxDesc := range ot.desc.Indexes {
		out = append(out, exec.IndexBinding{Index: idxDesc, Handle: ot.indexes[idxDesc.Name]})
	}
	return out, nil
}

// Index returns one named secondary index's handle for a table, for
// building an IndexScan.
func (db *Database) Index(tabName, indexName string) (record.Index, *index.Handle, error) {
	ot, err := db.openTableHandle(tabName)
	if err != nil {
		return record.Index{}, nil, err
	}
	for _, idxDesc := range ot.desc.Indexes {
		if idxDesc.Name == indexName {
			return idxDesc, ot.indexes[indexName], nil
		}
	}
	return record.Index{}, nil, fmt.Errorf("engine: table %q has no index %q", tabName, indexName)
}

// Begin starts a new transaction against this database.
func (db *Database) Begin() (*txn.Transaction, error) {
	if db.closed {
		return nil, ErrDatabaseClosed
	}
	return db.Txns.Begin()
}

// Commit commits a transaction started by Begin.
func (db *Database) Commit(t *txn.Transaction) error { return db.Txns.Commit(t) }

// Abort aborts a transaction started by Begin, undoing its write-set
// against this database's own table handles.
func (db *Database) Abort(t *txn.Transaction) error { return db.Txns.Abort(t, db) }

// DeleteRecord implements txn.RecordUndoer by dispatching to the named
// table's heap file.
func (db *Database) DeleteRecord(tabName string, rid heap.Rid) error {
	ot, err := db.openTableHandle(tabName)
	if err != nil {
		return err
	}
	return ot.rf.DeleteRecord(rid)
}

// InsertRecordAt implements txn.RecordUndoer.
func (db *Database) InsertRecordAt(tabName string, rid heap.Rid, data []byte) error {
	ot, err := db.openTableHandle(tabName)
	if err != nil {
		return err
	}
	return ot.rf.InsertRecordAt(rid, data)
}

// UpdateRecord implements txn.RecordUndoer.
func (db *Database) UpdateRecord(tabName string, rid heap.Rid, data []byte) error {
	ot, err := db.openTableHandle(tabName)
	if err != nil {
		return err
	}
	return ot.rf.UpdateRecord(rid, data)
}

// DropTable closes and removes a table's heap file, every one of its
// secondary index files, and its catalog entry.
func (db *Database) DropTable(name string) error {
	if db.closed {
		return ErrDatabaseClosed
	}
	ot, err := db.openTableHandle(name)
	if err != nil {
		return err
	}

	if err := ot.rf.Close(); err != nil {
		return err
	}
	if err := storage.RemoveAllSegments(db.heapFileSet(name).(storage.LocalFileSet)); err != nil {
		return err
	}
	for _, idxDesc := range ot.desc.Indexes {
		if err := ot.indexes[idxDesc.Name].Close(); err != nil {
			return err
		}
		if err := index.Drop(db.indexFileSet(name, idxDesc.Name)); err != nil {
			return err
		}
	}

	delete(db.tables, name)
	db.Cat.RemoveTable(name)
	return db.Cat.Flush(db.DataDir)
}

// Close flushes every open table's and index's buffer pool.
func (db *Database) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true
	for _, ot := range db.tables {
		if err := ot.rf.Close(); err != nil {
			return err
		}
		for _, h := range ot.indexes {
			if err := h.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}
