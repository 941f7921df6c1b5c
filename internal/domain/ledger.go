package domain

import (
	"context"
	"time"
)

// TransactionType classifies ledger entries by the operation that produced
// them.
type TransactionType string

const (
	TxTypeBridge                TransactionType = "bridge"
	TxTypeSwap                  TransactionType = "swap"
	TxTypeCreatePosition        TransactionType = "create_position"
	TxTypeWithdrawPosition      TransactionType = "withdraw_position"
	TxTypeWithdrawReconcile     TransactionType = "withdraw_reconciliation"
	TxTypeCollectRewards        TransactionType = "collect_rewards"
	TxTypeSweepRemoteBalance    TransactionType = "sweep_remote_balance"
)

// TransactionRecord is one append-only ledger entry. Records are keyed by
// (ChainID, TxHash, ActionIndex) so re-logging the same on-chain action after
// a crash is an idempotent upsert rather than a duplicate.
type TransactionRecord struct {
	ID          string
	CycleID     string
	ChainID     string
	TxHash      string
	ActionIndex int
	Type        TransactionType
	Denom       string
	Amount      string
	Details     map[string]any
	CreatedAt   time.Time
}

// TransactionLedger is the append-only persistent record of every on-chain
// action the bot takes. Each operation is logged immediately after on-chain
// confirmation, before the next operation starts, so a crash mid-sequence
// leaves a reconstructable trail.
type TransactionLedger interface {
	AddTransaction(ctx context.Context, rec TransactionRecord) error
	AddTransactionBatch(ctx context.Context, recs []TransactionRecord) error
}

// ArchivableLedger extends TransactionLedger with the queries the S3 archiver
// needs to move cold records out of the primary store.
type ArchivableLedger interface {
	TransactionLedger
	ListBefore(ctx context.Context, before time.Time) ([]TransactionRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
