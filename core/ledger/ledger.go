package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	"github.com/pyropy/chainstore/core/model"
	"github.com/pyropy/chainstore/lib/cache"
	"github.com/pyropy/chainstore/lib/checksum"
	concurrentMap "github.com/pyropy/chainstore/lib/concurrent_map"
	"github.com/pyropy/chainstore/lib/merkle"
	"go.uber.org/zap"
)

const (
	blocksPrefix     = "/blocks"
	DefaultCacheSize = 128
)

var (
	ErrGenesisMismatch = errors.New("stored genesis block does not match the fixed genesis")
	ErrRootMismatch    = errors.New("merkle root does not commit to the chunk fingerprints")
	ErrDamaged         = errors.New("ledger is damaged, refusing to append")
)

// Ledger is an append-only chain of blocks persisted in a datastore. Append
// is serialized by an internal lock; reads may run concurrently.
type Ledger struct {
	mu     sync.Mutex
	store  ds.Datastore
	log    *zap.SugaredLogger
	now    func() time.Time
	blocks *cache.LRU[uint64, model.Block]

	// latest block index per filename
	byFilename concurrentMap.Map[string, uint64]

	cacheSize int
	tip       model.Block
	length    uint64

	// first problem found while loading the stored chain
	damage *model.ChainIntegrityError
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

func WithCacheSize(size int) Option {
	return func(l *Ledger) {
		l.cacheSize = size
	}
}

func blockKey(index uint64) ds.Key {
	return ds.NewKey(fmt.Sprintf("%s/%020d", blocksPrefix, index))
}

// Open loads the chain stored in store, writing the genesis block first if
// the store is empty. A damaged chain still opens: the tip and filename index
// are rebuilt from the blocks that decode, the damage is kept for Damaged and
// Append is refused. Only I/O failures are returned.
func Open(ctx context.Context, store ds.Datastore, log *zap.SugaredLogger, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:     store,
		log:       log,
		now:       time.Now,
		cacheSize: DefaultCacheSize,
	}

	for _, opt := range opts {
		opt(l)
	}

	l.blocks = cache.NewLRU[uint64, model.Block](l.cacheSize)

	entries, err := l.scan(ctx)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		genesis := model.Genesis()
		if err := l.put(ctx, genesis); err != nil {
			return nil, err
		}

		log.Infow("ledger", "status", "genesis block written", "hash", genesis.Hash)
		l.tip = genesis
		l.length = 1
		return l, nil
	}

	l.load(entries)
	l.length = uint64(len(entries))

	if l.damage != nil {
		log.Warnw("ledger", "status", "opened damaged", "blocks", l.length, "firstDamaged", l.damage.Index, "reason", l.damage.Reason)
		return l, nil
	}

	log.Infow("ledger", "status", "opened", "blocks", l.length, "files", l.byFilename.Len(), "tip", l.tip.Hash)
	return l, nil
}

// load rebuilds the tip and filename index from the decodable entries and
// records the first entry that is out of place.
func (l *Ledger) load(entries []dsq.Entry) {
	for i, e := range entries {
		index := uint64(i)

		b, err := decode(e.Value)
		switch {
		case err != nil:
			l.markDamaged(index, "undecodable block: %v", err)
			continue
		case e.Key != blockKey(index).String() || b.Index != index:
			l.markDamaged(index, "index out of sequence: stored as %s with index %d", e.Key, b.Index)
			continue
		case index == 0 && !b.IsGenesis():
			l.markDamaged(index, "%s", ErrGenesisMismatch)
			continue
		}

		if index > 0 {
			l.byFilename.Set(b.FileMetadata.Filename, b.Index)
		}
		l.tip = b
	}
}

func (l *Ledger) markDamaged(index uint64, format string, args ...any) {
	if l.damage != nil {
		return
	}

	l.damage = &model.ChainIntegrityError{
		Index:  index,
		Reason: fmt.Sprintf(format, args...),
	}
}

// Damaged returns the first problem found while opening the chain, or nil.
func (l *Ledger) Damaged() error {
	if l.damage == nil {
		return nil
	}

	return l.damage
}

// Append seals a new block for the file and commits it after the current
// tip. The tip only moves once the block is persisted.
func (l *Ledger) Append(ctx context.Context, metadata model.FileMetadata, merkleRoot checksum.Hash) (model.Block, error) {
	if !merkle.Verify(merkleRoot, metadata.ChunkFingerprints) {
		return model.Block{}, ErrRootMismatch
	}

	fingerprints := make([]checksum.Hash, len(metadata.ChunkFingerprints))
	copy(fingerprints, metadata.ChunkFingerprints)
	metadata.ChunkFingerprints = fingerprints

	if l.damage != nil {
		return model.Block{}, fmt.Errorf("%w: %w", ErrDamaged, l.damage)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := model.NewBlock(l.tip, l.now().Unix(), metadata, merkleRoot)
	if err := l.put(ctx, b); err != nil {
		return model.Block{}, err
	}

	l.tip = b
	l.length++
	l.blocks.Put(b.Index, b)
	l.byFilename.Set(metadata.Filename, b.Index)

	l.log.Infow("ledger", "status", "block appended", "index", b.Index, "file", metadata.Filename, "chunks", len(fingerprints), "hash", b.Hash)
	return b, nil
}

// Get returns the block at index; the bool is false if there is none.
func (l *Ledger) Get(ctx context.Context, index uint64) (model.Block, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index >= l.length {
		return model.Block{}, false, nil
	}

	if b, ok := l.blocks.Get(index); ok {
		return b, true, nil
	}

	raw, err := l.store.Get(ctx, blockKey(index))
	if errors.Is(err, ds.ErrNotFound) {
		return model.Block{}, false, nil
	}

	if err != nil {
		return model.Block{}, false, fmt.Errorf("%w: reading block %d: %w", model.ErrIO, index, err)
	}

	b, err := decode(raw)
	if err != nil {
		return model.Block{}, false, fmt.Errorf("%w: block %d: %w", model.ErrChainIntegrity, index, err)
	}

	l.blocks.Put(index, b)
	return b, true, nil
}

// FindByFilename returns the most recent block recorded for name.
func (l *Ledger) FindByFilename(ctx context.Context, name string) (model.Block, bool, error) {
	index, ok := l.byFilename.Get(name)
	if !ok {
		return model.Block{}, false, nil
	}

	return l.Get(ctx, index)
}

func (l *Ledger) Len() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.length
}

func (l *Ledger) Tip() model.Block {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.tip
}

// Blocks reads the whole stored chain in index order.
func (l *Ledger) Blocks(ctx context.Context) ([]model.Block, error) {
	entries, err := l.scan(ctx)
	if err != nil {
		return nil, err
	}

	chain := make([]model.Block, 0, len(entries))
	for i, e := range entries {
		b, err := decode(e.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %w", model.ErrChainIntegrity, i, err)
		}
		chain = append(chain, b)
	}

	return chain, nil
}

func (l *Ledger) scan(ctx context.Context) ([]dsq.Entry, error) {
	q := dsq.Query{
		Prefix: blocksPrefix,
		Orders: []dsq.Order{dsq.OrderByKey{}},
	}

	res, err := l.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: querying blocks: %w", model.ErrIO, err)
	}
	defer res.Close()

	entries := make([]dsq.Entry, 0)
	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}

		if r.Error != nil {
			return nil, fmt.Errorf("%w: reading blocks: %w", model.ErrIO, r.Error)
		}
		entries = append(entries, r.Entry)
	}

	return entries, nil
}

func (l *Ledger) put(ctx context.Context, b model.Block) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}

	if err := l.store.Put(ctx, blockKey(b.Index), raw); err != nil {
		return fmt.Errorf("%w: writing block %d: %w", model.ErrIO, b.Index, err)
	}

	if err := l.store.Sync(ctx, ds.NewKey(blocksPrefix)); err != nil {
		return fmt.Errorf("%w: syncing block %d: %w", model.ErrIO, b.Index, err)
	}

	return nil
}

func decode(raw []byte) (model.Block, error) {
	var b model.Block
	err := json.Unmarshal(raw, &b)
	return b, err
}
