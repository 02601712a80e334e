package pass

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

// ErrNotFound is returned when no pass exists for a wallet.
var ErrNotFound = errors.New("pass not found")

const passDir = "passes"

// Pass records a wallet's membership pass state. Minting happens
// elsewhere; this package only persists the result keyed by wallet.
type Pass struct {
	WalletAddress string    `badgerhold:"key" json:"wallet_address"`
	MintAddress   string    `json:"mint_address"`
	Tier          string    `json:"tier"`
	AcquiredAt    time.Time `json:"acquired_at"`
}

// Store is the key-value persistence interface for pass state.
type Store interface {
	Save(ctx context.Context, p *Pass) error
	Get(ctx context.Context, walletAddress string) (*Pass, error)
	Delete(ctx context.Context, walletAddress string) error
	Close() error
}

// badgerStore persists passes in a badgerhold store on disk.
type badgerStore struct {
	store *badgerhold.Store
}

// NewStore opens the badger-backed store under baseDir. When the primary
// store cannot be opened (locked directory, read-only volume), it falls
// back to an in-memory store so pass lookups keep working for the life of
// the process.
func NewStore(baseDir string, logger *slog.Logger) Store {
	dir := filepath.Join(baseDir, passDir)
	store, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          badger.DefaultOptions(dir).WithLogger(nil),
	})
	if err != nil {
		logger.Warn("failed to open pass store, falling back to in-memory",
			"dir", dir,
			"error", err,
		)
		return NewMemoryStore()
	}

	logger.Info("pass store opened", "dir", dir)
	return &badgerStore{store: store}
}

func (s *badgerStore) Save(ctx context.Context, p *Pass) error {
	return s.store.Upsert(p.WalletAddress, p)
}

func (s *badgerStore) Get(ctx context.Context, walletAddress string) (*Pass, error) {
	var p Pass
	if err := s.store.Get(walletAddress, &p); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *badgerStore) Delete(ctx context.Context, walletAddress string) error {
	err := s.store.Delete(walletAddress, Pass{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil
	}
	return err
}

func (s *badgerStore) Close() error {
	return s.store.Close()
}

// MemoryStore is the in-process fallback store. Contents are lost on
// restart; that is acceptable for a fallback whose job is to keep the
// current session working.
type MemoryStore struct {
	mu     sync.RWMutex
	passes map[string]Pass
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{passes: make(map[string]Pass)}
}

func (s *MemoryStore) Save(ctx context.Context, p *Pass) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passes[p.WalletAddress] = *p
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, walletAddress string) (*Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.passes[walletAddress]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) Delete(ctx context.Context, walletAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.passes, walletAddress)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
