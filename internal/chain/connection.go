package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of the JSON-RPC client used by the gateway.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Dialer opens a Backend.
type Dialer func(ctx context.Context) (Backend, error)

// DialRPC returns a Dialer for a JSON-RPC endpoint.
func DialRPC(rpcURL string) Dialer {
	return func(ctx context.Context) (Backend, error) {
		return ethclient.DialContext(ctx, rpcURL)
	}
}

// Connection owns the current Backend and the chain id it reported.
type Connection struct {
	dial Dialer

	mutex   sync.RWMutex
	backend Backend
	chainID uint64
}

// Connect dials once and reads the chain id.
func Connect(ctx context.Context, dial Dialer) (*Connection, error) {
	if dial == nil {
		return nil, fmt.Errorf("%w: dialer is nil", purchase.ErrInvalidServiceConfig)
	}
	connection := &Connection{dial: dial}
	if err := connection.Redial(ctx); err != nil {
		return nil, err
	}
	return connection, nil
}

// Backend returns the live backend.
func (connection *Connection) Backend() Backend {
	connection.mutex.RLock()
	defer connection.mutex.RUnlock()
	return connection.backend
}

// ChainID returns the chain id observed on the last dial.
func (connection *Connection) ChainID() uint64 {
	connection.mutex.RLock()
	defer connection.mutex.RUnlock()
	return connection.chainID
}

// Redial replaces the backend and re-reads its chain id. The previous backend
// stays in place when dialing fails.
func (connection *Connection) Redial(ctx context.Context) error {
	backend, err := connection.dial(ctx)
	if err != nil {
		return purchase.WrapError(errorOperationChain, "connection", "dial", fmt.Errorf("%w: %v", purchase.ErrGatewayUnavailable, err))
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		closeBackend(backend)
		return purchase.WrapError(errorOperationChain, "connection", "chain_id", fmt.Errorf("%w: %v", purchase.ErrGatewayUnavailable, err))
	}
	connection.mutex.Lock()
	previous := connection.backend
	connection.backend = backend
	connection.chainID = chainID.Uint64()
	connection.mutex.Unlock()
	if previous != nil && previous != backend {
		closeBackend(previous)
	}
	return nil
}

// Close releases the backend.
func (connection *Connection) Close() {
	connection.mutex.Lock()
	defer connection.mutex.Unlock()
	if connection.backend != nil {
		closeBackend(connection.backend)
		connection.backend = nil
	}
}

func closeBackend(backend Backend) {
	if closer, ok := backend.(interface{ Close() }); ok {
		closer.Close()
	}
}

// Probe asks the live backend for its chain id.
func (connection *Connection) Probe(ctx context.Context) error {
	backend := connection.Backend()
	if backend == nil {
		return fmt.Errorf("%w: not connected", purchase.ErrGatewayUnavailable)
	}
	if _, err := backend.ChainID(ctx); err != nil {
		return fmt.Errorf("%w: %v", purchase.ErrGatewayUnavailable, err)
	}
	return nil
}
