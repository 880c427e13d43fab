package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
	"github.com/archon-research/oracle-pusher/internal/ports/outbound"
)

var (
	_ outbound.UpdateRecordSink   = (*UpdateRecordRepository)(nil)
	_ outbound.UpdateRecordReader = (*UpdateRecordRepository)(nil)
)

// UpdateRecordRepository stores one audit row per confirmed network update.
type UpdateRecordRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewUpdateRecordRepository creates a new PostgreSQL update record repository.
// The pool is owned by the caller.
func NewUpdateRecordRepository(pool *pgxpool.Pool, logger *slog.Logger) (*UpdateRecordRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UpdateRecordRepository{
		pool:   pool,
		logger: logger.With("component", "update-record-repository"),
	}, nil
}

// Publish inserts the record. Re-publishing the same transaction is a no-op.
func (r *UpdateRecordRepository) Publish(ctx context.Context, record *entity.UpdateRecord) error {
	if record == nil {
		return fmt.Errorf("record must not be nil")
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO oracle_update_record (
			network, chain_id, block_number, tx_hash, tx_url,
			gas_used, gas_price_wei, fee_native, fee_usd,
			feed_ids, symbols, reconciled, confirmed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (chain_id, tx_hash) DO NOTHING
	`,
		record.Network,
		record.ChainID,
		int64(record.BlockNumber),
		record.TxHash.Bytes(),
		record.TxURL,
		int64(record.GasUsed),
		weiString(record.GasPriceWei),
		record.FeeNative,
		record.FeeUSD,
		nonNil(record.FeedIDs),
		nonNil(record.Symbols),
		record.Reconciled,
		record.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting update record for %s: %w", record.Network, err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("update record already stored", "network", record.Network, "txHash", record.TxHash.Hex())
	}
	return nil
}

// Recent returns up to limit records, newest first. An empty network matches
// every network.
func (r *UpdateRecordRepository) Recent(ctx context.Context, network string, limit int) ([]*entity.UpdateRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT network, chain_id, block_number, tx_hash, tx_url,
		       gas_used, gas_price_wei::text, fee_native, fee_usd,
		       feed_ids, symbols, reconciled, confirmed_at
		FROM oracle_update_record
		WHERE $1 = '' OR network = $1
		ORDER BY confirmed_at DESC, id DESC
		LIMIT $2
	`, network, limit)
	if err != nil {
		return nil, fmt.Errorf("querying update records: %w", err)
	}
	defer rows.Close()

	var records []*entity.UpdateRecord
	for rows.Next() {
		var (
			rec         entity.UpdateRecord
			blockNumber int64
			txHash      []byte
			gasUsed     int64
			gasPrice    string
		)
		if err := rows.Scan(
			&rec.Network, &rec.ChainID, &blockNumber, &txHash, &rec.TxURL,
			&gasUsed, &gasPrice, &rec.FeeNative, &rec.FeeUSD,
			&rec.FeedIDs, &rec.Symbols, &rec.Reconciled, &rec.ConfirmedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning update record: %w", err)
		}
		rec.BlockNumber = uint64(blockNumber)
		rec.TxHash = common.BytesToHash(txHash)
		rec.GasUsed = uint64(gasUsed)
		if rec.GasPriceWei, err = parseWei(gasPrice); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating update records: %w", err)
	}
	return records, nil
}

// Close is a no-op; the pool is closed by its owner.
func (r *UpdateRecordRepository) Close() error {
	return nil
}

// weiString renders a wei amount for a NUMERIC column. Nil is stored as 0.
func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parsing wei amount %q", s)
	}
	return v, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
