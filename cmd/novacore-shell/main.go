// Command novacore-shell is a tiny scripted REPL over a novacore database.
// It has no SQL parser: instead of SQL text it takes a small line grammar
// that maps directly onto the SeqScan/IndexScan/Delete/Update operators,
// grounded in the teacher's cmd/client interactive loop.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tuannm99/novacore/internal/engine"
	"github.com/tuannm99/novacore/internal/exec"
	"github.com/tuannm99/novacore/internal/heap"
	"github.com/tuannm99/novacore/internal/record"
	"github.com/tuannm99/novacore/internal/txn"
)

func main() {
	dataDir := flag.String("data", defaultDataDir(), "database directory")
	flag.Parse()

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}

	db, err := engine.Open(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "novacore> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	fmt.Println("novacore scripted shell — type \\help for commands")

	sh := &shell{db: db}
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			fmt.Println("^C")
			continue
		}
		if err != nil {
			fmt.Println()
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "\\q" || line == "quit" || line == "exit" {
			return
		}
		if line == "\\help" {
			printHelp()
			continue
		}
		if err := sh.run(line); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func printHelp() {
	fmt.Println(`commands:
  begin                                          start a transaction
  commit | abort                                 end the current transaction
  createtable <name> <col>:<TYPE>:<len>[:indexed]... define a table
  droptable <name>                               drop a table and its indexes
  insert <table> <v1> <v2> ...                   insert one row
  scan <table> [col op value]...                 sequential scan with an AND predicate
  scanindex <table> <index> [col op value]...    index scan with an AND predicate
  delete <table> <pageid>:<slot>                  delete one row by rid
  update <table> <pageid>:<slot> col=value ...    update one row by rid
  quit | exit                                     leave the shell`)
}

// shell holds the one transaction this session may have open; novacore
// itself is multi-transaction, but a single-user scripted REPL only ever
// drives one at a time.
type shell struct {
	db *engine.Database
	tx *txnHandle
}

// txnHandle wraps one open transaction. explicit is true when the user
// opened it with "begin" and is expected to close it with "commit"/"abort";
// otherwise it was opened implicitly for a single statement and autoCommit
// closes it right away.
type txnHandle struct {
	sh       *shell
	txn      *txn.Transaction
	explicit bool
}

func (s *shell) begin() error {
	if s.tx != nil {
		return fmt.Errorf("a transaction is already open")
	}
	t, err := s.db.Begin()
	if err != nil {
		return err
	}
	s.tx = &txnHandle{sh: s, txn: t, explicit: true}
	fmt.Printf("transaction %d started\n", t.ID())
	return nil
}

func (s *shell) commit() error {
	if s.tx == nil {
		return fmt.Errorf("no transaction open")
	}
	if err := s.db.Commit(s.tx.txn); err != nil {
		return err
	}
	s.tx = nil
	fmt.Println("committed")
	return nil
}

func (s *shell) abort() error {
	if s.tx == nil {
		return fmt.Errorf("no transaction open")
	}
	if err := s.db.Abort(s.tx.txn); err != nil {
		return err
	}
	s.tx = nil
	fmt.Println("aborted")
	return nil
}

// currentOrNewTxn returns the user's open transaction if there is one, or
// begins a fresh implicit one for a single statement.
func (s *shell) currentOrNewTxn() (*txnHandle, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	t, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	return &txnHandle{sh: s, txn: t, explicit: false}, nil
}

func (t *txnHandle) autoCommit() error {
	if t.explicit {
		return nil
	}
	return t.sh.db.Commit(t.txn)
}

func writeInsert(tabName string, rid heap.Rid) txn.WriteRecord {
	return txn.WriteRecord{Type: txn.InsertTuple, TabName: tabName, Rid: rid}
}

func (s *shell) run(line string) error {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "begin":
		return s.begin()
	case "commit":
		return s.commit()
	case "abort":
		return s.abort()
	case "createtable":
		return s.createTable(args)
	case "droptable":
		return s.dropTable(args)
	case "insert":
		return s.insert(args)
	case "scan":
		return s.scan(args)
	case "scanindex":
		return s.scanIndex(args)
	case "delete":
		return s.delete(args)
	case "update":
		return s.update(args)
	default:
		return fmt.Errorf("unknown command %q (try \\help)", cmd)
	}
}

func parseColSpec(spec string) (record.Column, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 3 {
		return record.Column{}, fmt.Errorf("bad column spec %q, want name:TYPE:len[:indexed]", spec)
	}
	var colType record.ColumnType
	switch strings.ToUpper(parts[1]) {
	case "INT":
		colType = record.ColInt
	case "FLOAT":
		colType = record.ColFloat
	case "STRING":
		colType = record.ColString
	default:
		return record.Column{}, fmt.Errorf("unknown column type %q", parts[1])
	}
	length, err := strconv.Atoi(parts[2])
	if err != nil {
		return record.Column{}, fmt.Errorf("bad column length %q: %w", parts[2], err)
	}
	hasIndex := len(parts) > 3 && parts[3] == "indexed"
	return record.Column{Name: parts[0], Type: colType, Len: colType.Width(length), HasIndex: hasIndex}, nil
}

func (s *shell) createTable(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: createtable <name> <col>:<TYPE>:<len>[:indexed]...")
	}
	name := args[0]
	table := record.Table{Name: name}
	offset := 0
	for _, spec := range args[1:] {
		col, err := parseColSpec(spec)
		if err != nil {
			return err
		}
		col.TabName = name
		col.Offset = offset
		offset += col.Len
		table.Cols = append(table.Cols, col)
	}
	for _, col := range table.Cols {
		if !col.HasIndex {
			continue
		}
		idx, err := record.NewIndex(&table, col.Name+"_idx", []string{col.Name})
		if err != nil {
			return err
		}
		table.Indexes = append(table.Indexes, idx)
	}
	if err := s.db.CreateTable(table); err != nil {
		return err
	}
	fmt.Printf("table %s created (%d columns, %d indexes)\n", name, len(table.Cols), len(table.Indexes))
	return nil
}

func parseValue(col record.Column, raw string) (any, error) {
	switch col.Type {
	case record.ColInt:
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		return int32(n), nil
	case record.ColFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		return f, nil
	case record.ColString:
		return raw, nil
	default:
		return nil, fmt.Errorf("column %s: unsupported type", col.Name)
	}
}

func (s *shell) dropTable(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: droptable <name>")
	}
	if err := s.db.DropTable(args[0]); err != nil {
		return err
	}
	fmt.Printf("table %s dropped\n", args[0])
	return nil
}

func (s *shell) insert(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: insert <table> <v1> <v2> ...")
	}
	tabName := args[0]
	table, rf, err := s.db.Table(tabName)
	if err != nil {
		return err
	}
	if len(args)-1 != len(table.Cols) {
		return fmt.Errorf("table %s expects %d values, got %d", tabName, len(table.Cols), len(args)-1)
	}
	values := make([]any, len(table.Cols))
	for i, col := range table.Cols {
		v, err := parseValue(col, args[i+1])
		if err != nil {
			return err
		}
		values[i] = v
	}
	buf, err := record.EncodeRow(table, values)
	if err != nil {
		return err
	}
	rid, err := rf.InsertRecord(buf)
	if err != nil {
		return err
	}

	bindings, err := s.db.IndexBindings(tabName)
	if err != nil {
		return err
	}
	for _, b := range bindings {
		key, err := record.PackIndexKey(table, b.Index, values)
		if err != nil {
			return err
		}
		if err := b.Handle.InsertEntry(key, rid); err != nil {
			return err
		}
	}

	if s.tx != nil {
		s.tx.txn.AppendWrite(writeInsert(tabName, rid))
	}
	fmt.Printf("inserted rid=%d:%d\n", rid.PageID, rid.Slot)
	return nil
}

func parseConds(table *record.Table, args []string) ([]exec.Condition, error) {
	if len(args)%3 != 0 {
		return nil, fmt.Errorf("conditions must come in col op value triples")
	}
	var conds []exec.Condition
	for i := 0; i < len(args); i += 3 {
		col, ok := table.ColByName(args[i])
		if !ok {
			return nil, fmt.Errorf("unknown column %q", args[i])
		}
		op, err := parseOp(args[i+1])
		if err != nil {
			return nil, err
		}
		val, err := parseValue(col, args[i+2])
		if err != nil {
			return nil, err
		}
		conds = append(conds, exec.Condition{Col: col.Name, Op: op, Value: val})
	}
	return conds, nil
}

func parseOp(s string) (exec.Op, error) {
	switch s {
	case "=":
		return exec.EQ, nil
	case "!=":
		return exec.NE, nil
	case ">":
		return exec.GT, nil
	case ">=":
		return exec.GE, nil
	case "<":
		return exec.LT, nil
	case "<=":
		return exec.LE, nil
	default:
		return 0, fmt.Errorf("unknown operator %q", s)
	}
}

func (s *shell) scan(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: scan <table> [col op value]...")
	}
	tabName := args[0]
	table, rf, err := s.db.Table(tabName)
	if err != nil {
		return err
	}
	conds, err := parseConds(table, args[1:])
	if err != nil {
		return err
	}

	sc := exec.NewSeqScan(table, rf, conds)
	if err := sc.BeginTuple(); err != nil {
		return err
	}
	count := 0
	for !sc.IsEnd() {
		row, err := record.DecodeRow(table, sc.Current().Data)
		if err != nil {
			return err
		}
		fmt.Println(formatRow(sc.Current().Rid, row))
		count++
		if err := sc.NextTuple(); err != nil {
			return err
		}
	}
	fmt.Printf("(%d rows)\n", count)
	return nil
}

func (s *shell) scanIndex(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: scanindex <table> <index> [col op value]...")
	}
	tabName, indexName := args[0], args[1]
	table, rf, err := s.db.Table(tabName)
	if err != nil {
		return err
	}
	indexDesc, handle, err := s.db.Index(tabName, indexName)
	if err != nil {
		return err
	}
	conds, err := parseConds(table, args[2:])
	if err != nil {
		return err
	}
	t, err := s.currentOrNewTxn()
	if err != nil {
		return err
	}

	sc := exec.NewIndexScan(table, indexDesc, handle, rf, conds, s.db.Locks, t.txn, tabName)
	if err := sc.BeginTuple(); err != nil {
		return err
	}
	count := 0
	for !sc.IsEnd() {
		row, err := record.DecodeRow(table, sc.Current().Data)
		if err != nil {
			return err
		}
		fmt.Println(formatRow(sc.Current().Rid, row))
		count++
		if err := sc.NextTuple(); err != nil {
			return err
		}
	}
	fmt.Printf("(%d rows)\n", count)
	return t.autoCommit()
}

func formatRow(rid heap.Rid, row []any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%d |", rid.PageID, rid.Slot)
	for _, v := range row {
		fmt.Fprintf(&b, " %v", v)
	}
	return b.String()
}

func parseRid(s string) (heap.Rid, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return heap.Rid{}, fmt.Errorf("bad rid %q, want pageid:slot", s)
	}
	page, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return heap.Rid{}, err
	}
	slot, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return heap.Rid{}, err
	}
	return heap.Rid{PageID: uint32(page), Slot: uint16(slot)}, nil
}

func (s *shell) delete(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: delete <table> <pageid>:<slot>")
	}
	tabName := args[0]
	rid, err := parseRid(args[1])
	if err != nil {
		return err
	}
	table, rf, err := s.db.Table(tabName)
	if err != nil {
		return err
	}
	bindings, err := s.db.IndexBindings(tabName)
	if err != nil {
		return err
	}
	t, err := s.currentOrNewTxn()
	if err != nil {
		return err
	}
	del := exec.NewDelete(table, rf, bindings, s.db.Locks, t.txn, tabName, []heap.Rid{rid})
	if err := del.BeginTuple(); err != nil {
		return err
	}
	return t.autoCommit()
}

func (s *shell) update(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: update <table> <pageid>:<slot> col=value ...")
	}
	tabName := args[0]
	rid, err := parseRid(args[1])
	if err != nil {
		return err
	}
	table, rf, err := s.db.Table(tabName)
	if err != nil {
		return err
	}
	var sets []exec.SetClause
	for _, kv := range args[2:] {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("bad set clause %q, want col=value", kv)
		}
		col, ok := table.ColByName(parts[0])
		if !ok {
			return fmt.Errorf("unknown column %q", parts[0])
		}
		v, err := parseValue(col, parts[1])
		if err != nil {
			return err
		}
		sets = append(sets, exec.SetClause{Col: parts[0], Value: v})
	}
	bindings, err := s.db.IndexBindings(tabName)
	if err != nil {
		return err
	}
	t, err := s.currentOrNewTxn()
	if err != nil {
		return err
	}
	upd := exec.NewUpdate(table, rf, bindings, s.db.Locks, t.txn, tabName, []heap.Rid{rid}, sets)
	if err := upd.BeginTuple(); err != nil {
		return err
	}
	return t.autoCommit()
}

func defaultDataDir() string {
	return filepath.Join(".", "data")
}
