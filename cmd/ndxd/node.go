package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ndxgov/config"
	"ndxgov/core/chain"
	"ndxgov/core/events"
	"ndxgov/core/genesis"
	"ndxgov/indexer"
	"ndxgov/observability/metrics"
	"ndxgov/rpc"
	"ndxgov/storage"
)

// node bundles the long lived components of a running daemon.
type node struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *storage.LevelDB
	chain  *chain.Chain
	index  *indexer.Indexer
	hub    *rpc.Hub
	rpc    *rpc.Server
}

// openNode opens the database and event index, wires the chain emitters and
// builds genesis when the database has never been initialised.
func openNode(cfg *config.Config, logger *slog.Logger) (*node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	n := &node{cfg: cfg, logger: logger, db: db, hub: rpc.NewHub()}
	if n.index, err = indexer.Open(indexDSN(cfg), logger); err != nil {
		n.Close()
		return nil, fmt.Errorf("open event index: %w", err)
	}
	emitter := events.Fanout{n.index, n.hub, metrics.EventEmitter{}}
	n.chain, err = chain.New(db, chain.NewManualClock(0, 0),
		chain.WithChainID(cfg.ChainID),
		chain.WithEmitter(emitter),
		chain.WithLogger(logger))
	if err != nil {
		n.Close()
		return nil, err
	}
	genesis.Register(n.chain)
	if err := n.ensureGenesis(); err != nil {
		n.Close()
		return nil, err
	}
	n.rpc = rpc.NewServer(n.chain, n.index, n.hub, rpc.Config{
		JWTSecret:         cfg.RPC.JWTSecret,
		RequestsPerMinute: cfg.RPC.RequestsPerMinute,
		Burst:             cfg.RPC.Burst,
	}, logger)
	return n, nil
}

func (n *node) ensureGenesis() error {
	initialized, err := genesis.Initialized(n.chain)
	if err != nil {
		return err
	}
	if initialized {
		head := n.chain.Head()
		if head == nil {
			return errors.New("genesis deployed but no sealed block")
		}
		n.logger.Info("resuming chain", slog.Uint64("height", head.Height))
		return nil
	}
	path := strings.TrimSpace(n.cfg.GenesisFile)
	if path == "" {
		return errors.New("empty database and no GenesisFile configured")
	}
	spec, err := genesis.Load(path)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	d, err := genesis.Build(n.chain, spec)
	if err != nil {
		return fmt.Errorf("build genesis: %w", err)
	}
	n.logger.Info("genesis built",
		slog.String("token", d.Token.String()),
		slog.String("governor", d.Governor.String()),
		slog.String("timelock", d.Timelock.String()),
		slog.Int("vesters", len(d.Vesting)))
	return nil
}

// indexDSN resolves a relative sqlite path against the data directory.
func indexDSN(cfg *config.Config) string {
	dsn := strings.TrimSpace(cfg.IndexerDSN)
	if dsn == "" || strings.Contains(dsn, "://") || strings.Contains(dsn, "=") || filepath.IsAbs(dsn) || strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	return filepath.Join(cfg.DataDir, dsn)
}

func (n *node) Close() {
	if n.hub != nil {
		n.hub.Close()
	}
	if n.index != nil {
		if err := n.index.Close(); err != nil {
			n.logger.Warn("close event index", slog.Any("error", err))
		}
	}
	if n.db != nil {
		n.db.Close()
	}
}

// producer seals a block every interval using wall clock time.
type producer struct {
	chain    *chain.Chain
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	wg sync.WaitGroup
}

func newProducer(c *chain.Chain, interval time.Duration, logger *slog.Logger) *producer {
	return &producer{chain: c, interval: interval, logger: logger, now: time.Now}
}

func (p *producer) seal() error {
	_, err := p.chain.SealBlock(uint64(p.now().Unix()))
	return err
}

// Start runs the sealing loop until ctx is cancelled. Wait blocks until the
// loop has exited.
func (p *producer) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.seal(); err != nil {
					p.logger.Error("failed to seal block", slog.Any("error", err))
				}
			}
		}
	}()
}

func (p *producer) Wait() { p.wg.Wait() }
