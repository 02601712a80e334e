package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// IsValidAddress reports whether s is a well-formed base58 Solana public
// key. Pure and total: never panics, any input maps to true or false.
func IsValidAddress(s string) bool {
	_, err := solana.PublicKeyFromBase58(s)
	return err == nil
}

// DeriveAssociatedTokenAddress computes the associated token account
// address for an owner and mint under the SPL token program. It satisfies
// distribute.ATADeriver.
func DeriveAssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner[:], solana.TokenProgramID[:], mint[:]},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive associated token address: %w", err)
	}
	return addr, nil
}
