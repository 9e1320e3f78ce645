package db

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

// The engine serializes sibling mutations with FOR UPDATE row locks, so
// writes must not run under snapshot isolation: a transaction that waited on
// the winner's lock has to observe the committed row afterwards rather than
// abort with a serialization failure. Guard the isolation level here since
// the race itself needs a live database to reproduce.
func TestWriteTransactionsUseReadCommitted(t *testing.T) {
	require.Equal(t, pgx.ReadCommitted, txOptions.IsoLevel)
}
