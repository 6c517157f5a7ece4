package txn

import (
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"

	"github.com/tuannm99/novacore/internal/alias/bx"
)

// Log is the transaction manager's own logical record log: BEGIN, COMMIT
// and ABORT markers tagged by txn id. The markers carry no page data, only
// framing; there are no INSERT, DELETE or UPDATE records.
type Log struct {
	mu sync.Mutex
	f  *os.File
}

const (
	txnLogMagic   uint32 = 0x4e54584e // "NTXN"
	txnLogVersion uint16 = 1

	recBegin  uint8 = 1
	recCommit uint8 = 2
	recAbort  uint8 = 3

	txnLogHeaderSize = 4 + 2 + 1 + 1 + 4 + 4 + 8 // magic,ver,typ,rsv,totalLen,crc,txnID
)

// OpenLog opens (creating if necessary) the transaction log file under dir.
func OpenLog(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "txn.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Log{f: f}, nil
}

func (l *Log) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	return l.f.Close()
}

func (l *Log) append(typ uint8, txnID uint64) error {
	if l == nil {
		return nil
	}
	buf := make([]byte, txnLogHeaderSize)
	bx.PutU32At(buf, 0, txnLogMagic)
	bx.PutU16At(buf, 4, txnLogVersion)
	buf[6] = typ
	buf[7] = 0
	bx.PutU32At(buf, 8, uint32(txnLogHeaderSize))
	bx.PutU32At(buf, 12, 0) // crc placeholder
	bx.PutU64At(buf, 16, txnID)

	crc := crc32.ChecksumIEEE(buf[16:])
	bx.PutU32At(buf, 12, crc)

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.f.Write(buf)
	return err
}

func (l *Log) appendBegin(txnID uint64) error  { return l.append(recBegin, txnID) }
func (l *Log) appendCommit(txnID uint64) error { return l.append(recCommit, txnID) }
func (l *Log) appendAbort(txnID uint64) error  { return l.append(recAbort, txnID) }

// Flush forces the log's contents to stable storage.
func (l *Log) Flush() error {
	if l == nil || l.f == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Sync()
}
