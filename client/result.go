package client

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// CallResult is the decoded outcome of a successful state-changing contract
// call.
type CallResult struct {
	// Value is the contract's return value, decoded to text. Empty when the
	// method returned nothing.
	Value string

	// Logs are every log line emitted while the transaction and its
	// receipts executed, in execution order.
	Logs []string

	// Raw is the full execution outcome as returned by the node.
	Raw json.RawMessage
}

// ReceiptFailure is one failed execution step inside a transaction outcome.
type ReceiptFailure struct {
	ReceiptID  string
	ExecutorID string
	Message    string
}

// TxError reports a contract call whose execution failed on chain. The whole
// report is built from the execution outcome alone, so it stays available
// without further RPC traffic.
type TxError struct {
	Message    string
	Method     string
	SignerID   string
	ReceiverID string
	Logs       []string
	Receipts   []ReceiptFailure
	Raw        json.RawMessage
}

func (e *TxError) Error() string {
	return fmt.Sprintf("call to %s.%s from %s failed: %s", e.ReceiverID, e.Method, e.SignerID, e.Message)
}

// executionOutcome is the per-step outcome shape shared by the transaction
// outcome and every receipt outcome.
type executionOutcome struct {
	Logs       []string `json:"logs"`
	ExecutorID string   `json:"executor_id"`
	Status     struct {
		Failure json.RawMessage `json:"Failure"`
	} `json:"status"`
}

// finalOutcome is the subset of a FinalExecutionOutcome the decoder needs.
type finalOutcome struct {
	Status struct {
		SuccessValue *string         `json:"SuccessValue"`
		Failure      json.RawMessage `json:"Failure"`
	} `json:"status"`
	TransactionOutcome struct {
		Outcome executionOutcome `json:"outcome"`
	} `json:"transaction_outcome"`
	ReceiptsOutcome []struct {
		ID      string           `json:"id"`
		Outcome executionOutcome `json:"outcome"`
	} `json:"receipts_outcome"`
}

// decodeOutcome turns a raw execution outcome into a CallResult or a
// *TxError. The decision rests solely on the outcome's status field: an
// outcome with a SuccessValue is a success, anything else is a failure.
func decodeOutcome(raw json.RawMessage, method, signerID, receiverID string) (*CallResult, error) {
	var out finalOutcome
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode execution outcome: %w", err)
	}

	logs := out.TransactionOutcome.Outcome.Logs
	for _, r := range out.ReceiptsOutcome {
		logs = append(logs, r.Outcome.Logs...)
	}

	if out.Status.SuccessValue != nil {
		value, err := base64.StdEncoding.DecodeString(*out.Status.SuccessValue)
		if err != nil {
			return nil, fmt.Errorf("failed to decode return value: %w", err)
		}

		return &CallResult{Value: string(value), Logs: logs, Raw: raw}, nil
	}

	txErr := &TxError{
		Message:    failureMessage(out.Status.Failure),
		Method:     method,
		SignerID:   signerID,
		ReceiverID: receiverID,
		Logs:       logs,
		Raw:        raw,
	}
	for _, r := range out.ReceiptsOutcome {
		if len(r.Outcome.Status.Failure) == 0 {
			continue
		}
		txErr.Receipts = append(txErr.Receipts, ReceiptFailure{
			ReceiptID:  r.ID,
			ExecutorID: r.Outcome.ExecutorID,
			Message:    failureMessage(r.Outcome.Status.Failure),
		})
	}

	return nil, txErr
}

// failureMessage extracts a human readable message from a failure value. The
// node nests the useful string under varying error kinds, so the decoder
// looks for the well known message keys anywhere in the structure and falls
// back to the raw JSON.
func failureMessage(failure json.RawMessage) string {
	if len(failure) == 0 {
		return "execution failed without a failure description"
	}

	var tree any
	if err := json.Unmarshal(failure, &tree); err == nil {
		if msg := findMessage(tree); msg != "" {
			return msg
		}
	}

	return strings.TrimSpace(string(failure))
}

var messageKeys = []string{"ExecutionError", "error_message", "error_type"}

func findMessage(tree any) string {
	node, ok := tree.(map[string]any)
	if !ok {
		return ""
	}

	for _, key := range messageKeys {
		if msg, ok := node[key].(string); ok {
			return msg
		}
	}
	for _, child := range node {
		if msg := findMessage(child); msg != "" {
			return msg
		}
	}

	return ""
}
