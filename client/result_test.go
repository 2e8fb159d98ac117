package client

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successOutcome = `{
	"status": {"SuccessValue": "NDI="},
	"transaction_outcome": {"outcome": {"logs": [], "executor_id": "alice.test.near", "status": {"SuccessReceiptId": "r1"}}},
	"receipts_outcome": [
		{"id": "r1", "outcome": {"logs": ["count set to 42"], "executor_id": "counter.test.near", "status": {"SuccessValue": "NDI="}}}
	]
}`

const failureOutcome = `{
	"status": {"Failure": {"ActionError": {"index": 0, "kind": {"FunctionCallError": {"ExecutionError": "Smart contract panicked: counter overflow"}}}}},
	"transaction_outcome": {"outcome": {"logs": [], "executor_id": "alice.test.near", "status": {"SuccessReceiptId": "r1"}}},
	"receipts_outcome": [
		{"id": "r1", "outcome": {"logs": ["about to overflow"], "executor_id": "counter.test.near", "status": {"Failure": {"ActionError": {"kind": {"FunctionCallError": {"ExecutionError": "Smart contract panicked: counter overflow"}}}}}}}
	]
}`

func Test_decodeOutcome_success(t *testing.T) {
	t.Parallel()

	result, err := decodeOutcome(json.RawMessage(successOutcome), "increment", "alice.test.near", "counter.test.near")
	require.NoError(t, err)

	assert.Equal(t, "42", result.Value)
	assert.Equal(t, []string{"count set to 42"}, result.Logs)
	assert.JSONEq(t, successOutcome, string(result.Raw))
}

func Test_decodeOutcome_emptySuccessValue(t *testing.T) {
	t.Parallel()

	raw := `{"status": {"SuccessValue": ""}, "transaction_outcome": {"outcome": {"logs": []}}, "receipts_outcome": []}`

	result, err := decodeOutcome(json.RawMessage(raw), "reset", "alice.test.near", "counter.test.near")
	require.NoError(t, err)
	assert.Empty(t, result.Value)
}

func Test_decodeOutcome_failure(t *testing.T) {
	t.Parallel()

	_, err := decodeOutcome(json.RawMessage(failureOutcome), "increment", "alice.test.near", "counter.test.near")

	var txErr *TxError
	require.ErrorAs(t, err, &txErr)

	assert.Equal(t, "Smart contract panicked: counter overflow", txErr.Message)
	assert.Equal(t, "increment", txErr.Method)
	assert.Equal(t, "alice.test.near", txErr.SignerID)
	assert.Equal(t, "counter.test.near", txErr.ReceiverID)
	assert.Equal(t, []string{"about to overflow"}, txErr.Logs)

	require.Len(t, txErr.Receipts, 1)
	assert.Equal(t, "r1", txErr.Receipts[0].ReceiptID)
	assert.Equal(t, "counter.test.near", txErr.Receipts[0].ExecutorID)
	assert.Equal(t, "Smart contract panicked: counter overflow", txErr.Receipts[0].Message)

	assert.ErrorContains(t, err, "call to counter.test.near.increment from alice.test.near failed")
}

func Test_decodeOutcome_failureWithoutDescription(t *testing.T) {
	t.Parallel()

	raw := `{"status": {"Failure": {"unexpected_shape": true}}, "transaction_outcome": {"outcome": {"logs": []}}, "receipts_outcome": []}`

	_, err := decodeOutcome(json.RawMessage(raw), "m", "a", "b")

	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	// Falls back to the raw failure JSON when no known message key exists.
	assert.Contains(t, txErr.Message, "unexpected_shape")
}

func Test_decodeOutcome_noStatusIsFailure(t *testing.T) {
	t.Parallel()

	// Without an explicit SuccessValue the outcome is never a success,
	// regardless of how cleanly the transport delivered it.
	raw := `{"status": {}, "transaction_outcome": {"outcome": {"logs": []}}, "receipts_outcome": []}`

	_, err := decodeOutcome(json.RawMessage(raw), "m", "a", "b")

	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "execution failed without a failure description", txErr.Message)
}

func Test_decodeOutcome_malformed(t *testing.T) {
	t.Parallel()

	_, err := decodeOutcome(json.RawMessage(`not json`), "m", "a", "b")
	require.ErrorContains(t, err, "failed to decode execution outcome")

	var txErr *TxError
	assert.False(t, errors.As(err, &txErr))
}
