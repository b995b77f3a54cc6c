package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/worklet/fleet/pkg/fleet"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedgerRecordCompletionPersistsEntry(t *testing.T) {
	l := openTestLedger(t)

	task := fleet.CompletedTask{WorkerID: "w1", SessionID: "sess-1"}
	require.NoError(t, l.RecordCompletion(task, time.Now()))

	count := 0
	require.NoError(t, l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, v []byte) error {
			count++
			return nil
		})
	}))
	require.Equal(t, 1, count)
}

func TestLedgerRecordFailurePersistsEntry(t *testing.T) {
	l := openTestLedger(t)

	task := fleet.FailedTask{WorkerID: "w2", ExitCode: 3, ErrorHint: "permission denied"}
	require.NoError(t, l.RecordFailure(task, time.Now()))

	count := 0
	require.NoError(t, l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, v []byte) error {
			count++
			return nil
		})
	}))
	require.Equal(t, 1, count)
}

func TestLedgerKeysDoNotCollideAcrossResumes(t *testing.T) {
	l := openTestLedger(t)

	task := fleet.CompletedTask{WorkerID: "w3", SessionID: "sess-a"}
	require.NoError(t, l.RecordCompletion(task, time.Now()))
	require.NoError(t, l.RecordCompletion(task, time.Now().Add(time.Second)))

	count := 0
	require.NoError(t, l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, v []byte) error {
			count++
			return nil
		})
	}))
	require.Equal(t, 2, count)
}

func TestLedgerCloseIsSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())
}
