// Package tx builds and signs NEAR transactions for submission to the
// sandbox. Transactions are Borsh-serialized in nearcore's wire layout and
// signed with ed25519 over the sha256 digest of the serialized payload.
package tx

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/near/borsh-go"

	"github.com/r-near/near-harness/keys"
)

// ed25519KeyType is the only key type the sandbox validator issues.
const ed25519KeyType = 0

// PublicKey is the wire form of an ed25519 public key.
type PublicKey struct {
	KeyType uint8
	Data    [32]byte
}

// Signature is the wire form of an ed25519 signature.
type Signature struct {
	KeyType uint8
	Data    [64]byte
}

// Transaction is an unsigned NEAR transaction. The action order is
// significant: the runtime executes actions in the order they appear.
type Transaction struct {
	SignerID   string
	PublicKey  PublicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]byte
	Actions    []Action
}

// SignedTransaction pairs a transaction with its signature.
type SignedTransaction struct {
	Transaction Transaction
	Signature   Signature
}

// Action variant ordinals, in nearcore's enum order.
const (
	ordCreateAccount uint8 = iota
	ordDeployContract
	ordFunctionCall
	ordTransfer
	ordStake
	ordAddKey
	ordDeleteKey
	ordDeleteAccount
)

// Action is the Borsh enum over all NEAR action variants.
type Action struct {
	Enum           borsh.Enum `borsh_enum:"true"`
	CreateAccount  CreateAccount
	DeployContract DeployContract
	FunctionCall   FunctionCall
	Transfer       Transfer
	Stake          Stake
	AddKey         AddKey
	DeleteKey      DeleteKey
	DeleteAccount  DeleteAccount
}

// CreateAccount creates the receiver account.
type CreateAccount struct{}

// DeployContract deploys wasm code to the receiver account.
type DeployContract struct {
	Code []byte
}

// FunctionCall invokes a method on the receiver's contract.
type FunctionCall struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    Balance
}

// Transfer moves yoctoNEAR to the receiver.
type Transfer struct {
	Deposit Balance
}

// Stake stakes yoctoNEAR with the given validator key.
type Stake struct {
	Stake     Balance
	PublicKey PublicKey
}

// AddKey adds an access key to the receiver account.
type AddKey struct {
	PublicKey PublicKey
	AccessKey AccessKey
}

// DeleteKey removes an access key from the receiver account.
type DeleteKey struct {
	PublicKey PublicKey
}

// DeleteAccount deletes the receiver account, sending remaining funds to the
// beneficiary.
type DeleteAccount struct {
	BeneficiaryID string
}

// AccessKey describes what a key is allowed to do.
type AccessKey struct {
	Nonce      uint64
	Permission AccessKeyPermission
}

// AccessKeyPermission is the Borsh enum over access key permissions.
type AccessKeyPermission struct {
	Enum         borsh.Enum `borsh_enum:"true"`
	FunctionCall FunctionCallPermission
	FullAccess   FullAccessPermission
}

// FunctionCallPermission restricts a key to calling the named methods on one
// receiver, optionally bounded by an allowance.
type FunctionCallPermission struct {
	Allowance   *Balance
	ReceiverID  string
	MethodNames []string
}

// FullAccessPermission grants a key full control of the account.
type FullAccessPermission struct{}

// NewCreateAccount returns a CreateAccount action.
func NewCreateAccount() Action {
	return Action{Enum: borsh.Enum(ordCreateAccount), CreateAccount: CreateAccount{}}
}

// NewDeployContract returns a DeployContract action for the given wasm code.
func NewDeployContract(code []byte) Action {
	return Action{Enum: borsh.Enum(ordDeployContract), DeployContract: DeployContract{Code: code}}
}

// NewFunctionCall returns a FunctionCall action. Args must already be
// JSON-encoded (or whatever encoding the contract expects).
func NewFunctionCall(method string, args []byte, gas uint64, deposit Balance) Action {
	return Action{
		Enum: borsh.Enum(ordFunctionCall),
		FunctionCall: FunctionCall{
			MethodName: method,
			Args:       args,
			Gas:        gas,
			Deposit:    deposit,
		},
	}
}

// NewTransfer returns a Transfer action.
func NewTransfer(deposit Balance) Action {
	return Action{Enum: borsh.Enum(ordTransfer), Transfer: Transfer{Deposit: deposit}}
}

// NewAddFullAccessKey returns an AddKey action granting full access to pk.
func NewAddFullAccessKey(pk keys.PublicKey) Action {
	return Action{
		Enum: borsh.Enum(ordAddKey),
		AddKey: AddKey{
			PublicKey: PublicKeyFrom(pk),
			AccessKey: AccessKey{
				Nonce: 0,
				Permission: AccessKeyPermission{
					Enum:       borsh.Enum(1), // FullAccess
					FullAccess: FullAccessPermission{},
				},
			},
		},
	}
}

// NewDeleteAccount returns a DeleteAccount action.
func NewDeleteAccount(beneficiaryID string) Action {
	return Action{Enum: borsh.Enum(ordDeleteAccount), DeleteAccount: DeleteAccount{BeneficiaryID: beneficiaryID}}
}

// PublicKeyFrom converts a harness public key into its wire form.
func PublicKeyFrom(pk keys.PublicKey) PublicKey {
	out := PublicKey{KeyType: ed25519KeyType}
	copy(out.Data[:], pk.Bytes())

	return out
}

// ParseBlockHash decodes a base58 block hash as returned by the RPC.
func ParseBlockHash(encoded string) ([32]byte, error) {
	var out [32]byte

	raw, err := base58.Decode(encoded)
	if err != nil {
		return out, fmt.Errorf("failed to decode block hash: %w", err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("invalid block hash length %d, want %d", len(raw), len(out))
	}
	copy(out[:], raw)

	return out, nil
}

// New assembles an unsigned transaction.
func New(signerID string, pk keys.PublicKey, nonce uint64, receiverID string, blockHash [32]byte, actions ...Action) Transaction {
	return Transaction{
		SignerID:   signerID,
		PublicKey:  PublicKeyFrom(pk),
		Nonce:      nonce,
		ReceiverID: receiverID,
		BlockHash:  blockHash,
		Actions:    actions,
	}
}

// Sign serializes the transaction, signs its sha256 digest with kp, and
// returns the signed transaction.
func (t Transaction) Sign(kp *keys.KeyPair) (SignedTransaction, error) {
	payload, err := borsh.Serialize(t)
	if err != nil {
		return SignedTransaction{}, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	digest := sha256.Sum256(payload)

	var sig Signature
	sig.KeyType = ed25519KeyType
	copy(sig.Data[:], kp.Sign(digest[:]))

	return SignedTransaction{Transaction: t, Signature: sig}, nil
}

// Base64 returns the Borsh serialization of the signed transaction encoded
// for the broadcast_tx_commit RPC parameter.
func (st SignedTransaction) Base64() (string, error) {
	payload, err := borsh.Serialize(st)
	if err != nil {
		return "", fmt.Errorf("failed to serialize signed transaction: %w", err)
	}

	return base64.StdEncoding.EncodeToString(payload), nil
}
