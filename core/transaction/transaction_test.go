package transaction

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestTransaction_CommitPath walks the successful protocol from begin to
// commit and back to inactive.
func TestTransaction_CommitPath(t *testing.T) {
	txn := &Transaction{ID: 4}
	for _, s := range []TransactionState{
		TxnStateActive, TxnStateWait, TxnStateValidating, TxnStateCommitting, TxnStateInactive,
	} {
		require.NoError(t, txn.Transition(s))
	}
	require.Equal(t, TxnStateInactive, txn.State)
}

func TestTransaction_RollbackPaths(t *testing.T) {
	for _, from := range []TransactionState{TxnStateActive, TxnStateWait, TxnStateValidating} {
		require.True(t, CanTransition(from, TxnStateRollingBack), from.String())
	}
	require.False(t, CanTransition(TxnStateCommitting, TxnStateRollingBack))
	require.False(t, CanTransition(TxnStateInactive, TxnStateRollingBack))
}

func TestTransaction_IllegalTransition(t *testing.T) {
	txn := &Transaction{ID: 1}
	err := txn.Transition(TxnStateCommitting)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Contains(t, err.Error(), "INACTIVE -> COMMITTING")
	require.Equal(t, TxnStateInactive, txn.State)
}

func TestTransaction_Expect(t *testing.T) {
	txn := &Transaction{State: TxnStateWait}
	require.NoError(t, txn.Expect("validate", TxnStateWait, TxnStateValidating))
	require.ErrorIs(t, txn.Expect("commit", TxnStateValidating), ErrInvalidState)
}

func TestTransaction_Reset(t *testing.T) {
	txn := &Transaction{ID: 2, State: TxnStateRollingBack, Retries: 3, RolledBackAsOldest: true}
	txn.Reset(9)
	require.Equal(t, Transaction{ID: 9}, *txn)
	require.Equal(t, "STATE(42)", TransactionState(42).String())
}
