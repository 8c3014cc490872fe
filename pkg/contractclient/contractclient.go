// Package contractclient wraps a bound contract ABI with the ethclient
// calls needed to read state and submit transactions, and decodes raw
// transaction input data back into named call arguments for diagnostics.
package contractclient

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ContractClient binds one on-chain address to its ABI and exposes call,
// send and decode helpers. The chain adapter in cmd holds one bound to
// the pool-registry contract for tier-4 pool enumeration.
type ContractClient struct {
	client  *ethclient.Client
	address common.Address
	abi     abi.ABI
}

// NewContractClient constructs a ContractClient bound to address using abi.
func NewContractClient(client *ethclient.Client, address common.Address, contractABI abi.ABI) *ContractClient {
	return &ContractClient{client: client, address: address, abi: contractABI}
}

// Abi returns the bound ABI.
func (c *ContractClient) Abi() abi.ABI {
	return c.abi
}

// Call performs a read-only contract call for method with args, returning
// the ABI-decoded outputs. caller may be nil for an unauthenticated call.
func (c *ContractClient) Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack call %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.address, Data: input}
	if caller != nil {
		msg.From = *caller
	}
	out, err := c.client.CallContract(context.Background(), msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s failed: %w", method, err)
	}

	outputs, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result of %s: %w", method, err)
	}
	return outputs, nil
}

// Send builds, signs and broadcasts a transaction invoking method with
// args, from the account behind opts.
func (c *ContractClient) Send(opts *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack send %s: %w", method, err)
	}

	nonce := opts.Nonce
	if nonce == nil {
		n, err := c.client.PendingNonceAt(context.Background(), opts.From)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch nonce: %w", err)
		}
		nonce = new(big.Int).SetUint64(n)
	}

	gasPrice := opts.GasPrice
	if gasPrice == nil {
		gp, err := c.client.SuggestGasPrice(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to suggest gas price: %w", err)
		}
		gasPrice = gp
	}

	tx := types.NewTransaction(nonce.Uint64(), c.address, big.NewInt(0), opts.GasLimit, gasPrice, input)
	signed, err := opts.Signer(opts.From, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.client.SendTransaction(context.Background(), signed); err != nil {
		return nil, fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	return signed, nil
}

// TransactionData fetches the raw input data of a confirmed transaction.
func (c *ContractClient) TransactionData(txHash common.Hash) ([]byte, error) {
	tx, _, err := c.client.TransactionByHash(context.Background(), txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", txHash.Hex(), err)
	}
	return tx.Data(), nil
}

// DecodedTransaction is a decoded method call: its name and positional
// argument values keyed by ABI input name.
type DecodedTransaction struct {
	MethodName string                 `json:"methodName"`
	Args       map[string]interface{} `json:"args"`
}

// DecodeTransaction decodes raw call data against the bound ABI.
func (c *ContractClient) DecodeTransaction(data []byte) (*DecodedTransaction, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("transaction data too short to contain a method selector")
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("failed to resolve method selector: %w", err)
	}
	args := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
		return nil, fmt.Errorf("failed to unpack arguments for %s: %w", method.Name, err)
	}
	return &DecodedTransaction{MethodName: method.Name, Args: args}, nil
}

// ParseReceipt fetches and returns the transaction receipt for txHash.
func (c *ContractClient) ParseReceipt(txHash common.Hash) (*types.Receipt, error) {
	receipt, err := c.client.TransactionReceipt(context.Background(), txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receipt for %s: %w", txHash.Hex(), err)
	}
	return receipt, nil
}
