package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ndxgov/config"
	"ndxgov/core/genesis"
	"ndxgov/crypto"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	holder := crypto.ContractAddress("account/holder")
	genesisPath := filepath.Join(dir, "genesis.yaml")
	spec := fmt.Sprintf("chainId: 9\ngenesisTime: \"2021-01-01T00:00:00Z\"\ntoken:\n  holder: %s\n", holder.Hex())
	if err := os.WriteFile(genesisPath, []byte(spec), 0o644); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	cfg := config.Default()
	cfg.ChainID = 9
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.GenesisFile = genesisPath
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenNodeBuildsGenesisOnce(t *testing.T) {
	cfg := testConfig(t)

	n, err := openNode(cfg, quietLogger())
	if err != nil {
		t.Fatalf("open node: %v", err)
	}
	head := n.chain.Head()
	if head == nil || head.Height != 1 {
		t.Fatalf("expected genesis block, got %+v", head)
	}
	p := newProducer(n.chain, time.Second, quietLogger())
	p.now = func() time.Time { return time.Unix(1_609_459_300, 0) }
	if err := p.seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}
	n.Close()

	cfg.GenesisFile = ""
	reopened, err := openNode(cfg, quietLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	head = reopened.chain.Head()
	if head == nil || head.Height != 2 {
		t.Fatalf("expected resumed head at 2, got %+v", head)
	}
	if head.Timestamp != 1_609_459_200 {
		t.Fatalf("unexpected head timestamp %d", head.Timestamp)
	}
	ok, err := genesis.Initialized(reopened.chain)
	if err != nil || !ok {
		t.Fatalf("expected initialised chain: ok=%v err=%v", ok, err)
	}
}

func TestOpenNodeRequiresGenesisFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.GenesisFile = ""
	if _, err := openNode(cfg, quietLogger()); err == nil {
		t.Fatalf("expected error without genesis file")
	}
}

func TestIndexDSN(t *testing.T) {
	cfg := &config.Config{DataDir: "/var/ndx", IndexerDSN: "index.db"}
	if got := indexDSN(cfg); got != filepath.Join("/var/ndx", "index.db") {
		t.Fatalf("relative path not resolved: %s", got)
	}
	for _, dsn := range []string{"postgres://u@h/db", "host=localhost dbname=ndx", "/abs/index.db", "file:x?mode=memory"} {
		cfg.IndexerDSN = dsn
		if got := indexDSN(cfg); got != dsn {
			t.Fatalf("dsn %q rewritten to %q", dsn, got)
		}
	}
}
