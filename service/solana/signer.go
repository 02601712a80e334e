package solana

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
)

// LocalSigner signs with a keypair loaded from a solana-keygen JSON file.
// It satisfies distribute.Signer: the whole ordered transaction list is
// signed in one call, all or nothing, order untouched.
type LocalSigner struct {
	key    solana.PrivateKey
	logger *slog.Logger
}

// NewLocalSigner wraps an in-memory private key.
func NewLocalSigner(key solana.PrivateKey, logger *slog.Logger) *LocalSigner {
	return &LocalSigner{key: key, logger: logger}
}

// NewLocalSignerFromFile loads a keypair from a solana-keygen JSON file.
func NewLocalSignerFromFile(path string, logger *slog.Logger) (*LocalSigner, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair from %s: %w", path, err)
	}
	return &LocalSigner{key: key, logger: logger}, nil
}

// PublicKey returns the signer's public key.
func (s *LocalSigner) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

// SignAll signs every transaction in order and returns the signed copies.
// Any failure rejects the whole request; the inputs are never mutated, so
// a mid-list failure cannot leave a partially signed batch behind.
func (s *LocalSigner) SignAll(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error) {
	pub := s.key.PublicKey()
	signed := make([]*solana.Transaction, len(txs))
	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("signing cancelled at transaction %d: %w", i, err)
		}
		cp := *tx
		cp.Signatures = append([]solana.Signature(nil), tx.Signatures...)
		_, err := cp.Sign(func(key solana.PublicKey) *solana.PrivateKey {
			if key.Equals(pub) {
				return &s.key
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to sign transaction %d of %d: %w", i, len(txs), err)
		}
		signed[i] = &cp
	}

	s.logger.Debug("signed transaction batch", "count", len(txs), "signer", pub.String())
	return signed, nil
}
