package oms

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestScanOrderPopulatesFieldsFromRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	cols := []string{
		"operation_id", "canonical_id", "venue", "venue_order_id", "strategy_id",
		"side", "order_type", "time_in_force", "quantity", "price", "status",
		"filled_quantity", "avg_fill_price", "atomic_group_id", "created_at", "updated_at",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		"op-1", "binance:spot:BTC-USDT", "binance", "vo-1", "strat-1",
		"BUY", "LIMIT", "GTC", decimal.NewFromInt(1).String(), decimal.NewFromInt(50000).String(), "SUBMITTED",
		decimal.NewFromInt(0).String(), decimal.NewFromInt(0).String(), nil, now, now,
	)
	mock.ExpectQuery("SELECT operation_id").WillReturnRows(rows)

	row := db.QueryRow("SELECT operation_id FROM orders WHERE operation_id = ?", "op-1")
	o, err := scanOrder(row)
	require.NoError(t, err)
	require.Equal(t, "op-1", o.OperationID)
	require.Equal(t, "binance", o.Venue)
	require.Equal(t, "vo-1", o.VenueOrderID)
	require.Equal(t, "", o.AtomicGroupID)
	require.NoError(t, mock.ExpectationsWereMet())
}
