package distribute

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// OpKind classifies a built instruction for recipient attribution.
type OpKind int

const (
	// OpFundFeeAccount tops up the fee-collection account ahead of the
	// per-recipient commission transfers.
	OpFundFeeAccount OpKind = iota

	// OpCreateAccount creates a recipient's associated token account.
	OpCreateAccount

	// OpTransfer moves the distributed asset to a recipient. This is the
	// instruction that attributes a recipient to a batch.
	OpTransfer

	// OpCommission moves the per-recipient commission to the
	// fee-collection account.
	OpCommission
)

// Instruction pairs a chain instruction with the recipient it originates
// from, so batch outcomes can be attributed to exact recipients even when
// creation and commission instructions are interleaved. Recipient is an
// index into the valid-recipient list passed to Build, or -1 for the
// fee-account funding instruction.
type Instruction struct {
	Ix        solana.Instruction
	Kind      OpKind
	Recipient int
}

// ATADeriver computes the associated token account address for an owner
// and mint. It is deterministic but may fail on malformed inputs.
type ATADeriver func(owner, mint solana.PublicKey) (solana.PublicKey, error)

// Builder converts a validated recipient list and asset selection into an
// ordered, flat instruction sequence. Order is preserved end-to-end since
// batching is purely positional.
type Builder struct {
	chain        ChainQuerier
	deriveATA    ATADeriver
	feeCollector solana.PublicKey
	logger       *slog.Logger
}

// NewBuilder creates a Builder. feeCollector is the platform-controlled
// commission collection account.
func NewBuilder(chain ChainQuerier, deriveATA ATADeriver, feeCollector solana.PublicKey, logger *slog.Logger) *Builder {
	return &Builder{
		chain:        chain,
		deriveATA:    deriveATA,
		feeCollector: feeCollector,
		logger:       logger,
	}
}

// Build produces the instruction sequence for one distribution run.
// Recipients must already be filtered to valid addresses with positive
// amounts; Build fails on any address it cannot parse rather than
// silently skipping a recipient.
func (b *Builder) Build(ctx context.Context, sender solana.PublicKey, recipients []Recipient, asset AssetSelection) ([]Instruction, error) {
	if asset.Type == AssetToken && asset.Token == nil {
		return nil, fmt.Errorf("token asset selected but no token provided")
	}

	out := make([]Instruction, 0, len(recipients)*3+1)

	if b.needsFeeAccountFunding(ctx) {
		fund := system.NewTransferInstruction(
			uint64(feeAccountRentLamports+feeAccountMarginLamports),
			sender,
			b.feeCollector,
		).Build()
		out = append(out, Instruction{Ix: fund, Kind: OpFundFeeAccount, Recipient: -1})
	}

	switch asset.Type {
	case AssetToken:
		tokenIxs, err := b.buildTokenTransfers(ctx, sender, recipients, asset.Token)
		if err != nil {
			return nil, err
		}
		out = append(out, tokenIxs...)
	default:
		for i, r := range recipients {
			dest, err := solana.PublicKeyFromBase58(r.Address)
			if err != nil {
				return nil, fmt.Errorf("recipient %d: invalid address %q: %w", i, r.Address, err)
			}
			lamports := uint64(math.Trunc(r.Amount * LamportsPerSOL))
			transfer := system.NewTransferInstruction(lamports, sender, dest).Build()
			out = append(out, Instruction{Ix: transfer, Kind: OpTransfer, Recipient: i})
			out = append(out, b.commission(sender, i))
		}
	}

	return out, nil
}

// needsFeeAccountFunding checks whether the fee-collection account holds
// the rent-exempt minimum. Fails open: a lookup error means funding is
// scheduled rather than risking commission transfers into a
// non-rent-exempt account.
func (b *Builder) needsFeeAccountFunding(ctx context.Context) bool {
	info, err := b.chain.GetAccount(ctx, b.feeCollector)
	if err != nil {
		b.logger.WarnContext(ctx, "fee account lookup failed, assuming funding required",
			"account", b.feeCollector.String(),
			"error", err,
		)
		return true
	}
	return !info.Exists || info.Lamports < feeAccountRentLamports
}

// buildTokenTransfers emits create-account (when needed), token-transfer,
// and commission instructions per recipient, in input order. Existence
// checks are issued concurrently but their results are consumed in
// recipient order.
func (b *Builder) buildTokenTransfers(ctx context.Context, sender solana.PublicKey, recipients []Recipient, tok *Token) ([]Instruction, error) {
	mint, err := solana.PublicKeyFromBase58(tok.MintAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid mint address %q: %w", tok.MintAddress, err)
	}

	sourceATA, err := b.deriveATA(sender, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive source token account: %w", err)
	}

	owners := make([]solana.PublicKey, len(recipients))
	for i, r := range recipients {
		owner, err := solana.PublicKeyFromBase58(r.Address)
		if err != nil {
			return nil, fmt.Errorf("recipient %d: invalid address %q: %w", i, r.Address, err)
		}
		owners[i] = owner
	}

	// Derivation failures and lookup errors both resolve to "create the
	// account"; a recipient is never skipped because a read failed.
	destATAs := make([]solana.PublicKey, len(recipients))
	needsCreate := make([]bool, len(recipients))
	var wg sync.WaitGroup
	for i := range recipients {
		ata, err := b.deriveATA(owners[i], mint)
		if err != nil {
			b.logger.WarnContext(ctx, "token account derivation failed, scheduling creation",
				"recipient", recipients[i].Address,
				"error", err,
			)
			destATAs[i] = owners[i]
			needsCreate[i] = true
			continue
		}
		destATAs[i] = ata

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, err := b.chain.GetAccount(ctx, destATAs[i])
			if err != nil {
				b.logger.WarnContext(ctx, "token account lookup failed, scheduling creation",
					"recipient", recipients[i].Address,
					"error", err,
				)
				needsCreate[i] = true
				return
			}
			needsCreate[i] = !info.Exists
		}(i)
	}
	wg.Wait()

	scale := math.Pow10(int(tok.Decimals))
	out := make([]Instruction, 0, len(recipients)*3)
	for i, r := range recipients {
		if needsCreate[i] {
			create := newCreateATAInstruction(sender, owners[i], mint)
			out = append(out, Instruction{Ix: create, Kind: OpCreateAccount, Recipient: i})
		}

		// Truncate toward zero, never round: a rounded-up amount could
		// exceed the sender's balance on the final recipient.
		baseUnits := uint64(math.Trunc(r.Amount * scale))
		transfer := newTokenTransferInstruction(sourceATA, destATAs[i], sender, baseUnits)
		out = append(out, Instruction{Ix: transfer, Kind: OpTransfer, Recipient: i})
		out = append(out, b.commission(sender, i))
	}

	return out, nil
}

func (b *Builder) commission(sender solana.PublicKey, recipient int) Instruction {
	ix := system.NewTransferInstruction(uint64(CommissionLamports), sender, b.feeCollector).Build()
	return Instruction{Ix: ix, Kind: OpCommission, Recipient: recipient}
}

// newTokenTransferInstruction builds a raw SPL token transfer:
// discriminator 3 followed by the amount in little-endian base units.
func newTokenTransferInstruction(source, dest, owner solana.PublicKey, amount uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = 3
	binary.LittleEndian.PutUint64(data[1:], amount)

	return solana.NewInstruction(
		solana.TokenProgramID,
		[]*solana.AccountMeta{
			{PublicKey: source, IsSigner: false, IsWritable: true},
			{PublicKey: dest, IsSigner: false, IsWritable: true},
			{PublicKey: owner, IsSigner: true, IsWritable: false},
		},
		data,
	)
}

// newCreateATAInstruction builds the associated token account "Create"
// instruction with the sender as rent payer.
func newCreateATAInstruction(payer, owner, mint solana.PublicKey) solana.Instruction {
	ata, _, err := solana.FindProgramAddress(
		[][]byte{owner[:], solana.TokenProgramID[:], mint[:]},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		// Derivation over fixed program seeds only fails on malformed
		// keys, which were parsed upstream; fall back to the owner key so
		// the instruction still carries a well-formed account list.
		ata = owner
	}

	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		[]*solana.AccountMeta{
			{PublicKey: payer, IsSigner: true, IsWritable: true},
			{PublicKey: ata, IsSigner: false, IsWritable: true},
			{PublicKey: owner, IsSigner: false, IsWritable: false},
			{PublicKey: mint, IsSigner: false, IsWritable: false},
			{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
			{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		},
		[]byte{0},
	)
}
