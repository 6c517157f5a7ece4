// Command novacore is the smoke-test binary: it loads novacore.yaml, opens
// (or creates) a database at the configured data directory, and runs one
// create/insert/scan cycle end to end, grounded in the teacher's
// cmd/manual_test/database sample.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tuannm99/novacore/internal/config"
	"github.com/tuannm99/novacore/internal/engine"
	"github.com/tuannm99/novacore/internal/exec"
	"github.com/tuannm99/novacore/internal/record"
)

func main() {
	cfgPath := flag.String("config", "novacore.yaml", "path to novacore.yaml")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	slog.SetLogLoggerLevel(cfg.SlogLevel())

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		slog.Error("create data dir", "dir", cfg.Storage.DataDir, "err", err)
		os.Exit(1)
	}

	db, err := engine.Open(cfg.Storage.DataDir)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	table := record.Table{
		Name: "users",
		Cols: []record.Column{
			{TabName: "users", Name: "id", Type: record.ColInt, Len: 4, Offset: 0, HasIndex: true},
			{TabName: "users", Name: "name", Type: record.ColString, Len: 32, Offset: 4},
		},
	}
	idx, err := record.NewIndex(&table, "id_idx", []string{"id"})
	if err != nil {
		slog.Error("build index descriptor", "err", err)
		os.Exit(1)
	}
	table.Indexes = []record.Index{idx}

	if err := db.CreateTable(table); err != nil {
		slog.Warn("create table", "err", err)
	}

	desc, rf, err := db.Table("users")
	if err != nil {
		slog.Error("open table", "err", err)
		os.Exit(1)
	}

	row := []any{int32(1), "Tuan"}
	buf, err := record.EncodeRow(desc, row)
	if err != nil {
		slog.Error("encode row", "err", err)
		os.Exit(1)
	}
	rid, err := rf.InsertRecord(buf)
	if err != nil {
		slog.Error("insert row", "err", err)
		os.Exit(1)
	}

	bindings, err := db.IndexBindings("users")
	if err != nil {
		slog.Error("load index bindings", "err", err)
		os.Exit(1)
	}
	for _, b := range bindings {
		key, err := record.PackIndexKey(desc, b.Index, row)
		if err != nil {
			slog.Error("pack index key", "err", err)
			os.Exit(1)
		}
		if err := b.Handle.InsertEntry(key, rid); err != nil {
			slog.Error("insert index entry", "err", err)
			os.Exit(1)
		}
	}

	scan := exec.NewSeqScan(desc, rf, nil)
	if err := scan.BeginTuple(); err != nil {
		slog.Error("scan", "err", err)
		os.Exit(1)
	}
	for !scan.IsEnd() {
		got, err := record.DecodeRow(desc, scan.Current().Data)
		if err != nil {
			slog.Error("decode row", "err", err)
			os.Exit(1)
		}
		fmt.Println("row:", got)
		if err := scan.NextTuple(); err != nil {
			slog.Error("scan next", "err", err)
			os.Exit(1)
		}
	}
}
