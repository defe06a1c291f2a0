package chain

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
)

// Session implements purchase.Session for the daemon's keyed wallet.
type Session struct {
	connection      *Connection
	signer          TxSigner
	expectedChainID uint64
}

// NewSession reports a wrong network whenever the node's chain id differs
// from expectedChainID.
func NewSession(connection *Connection, signer TxSigner, expectedChainID uint64) (*Session, error) {
	if connection == nil || signer == nil {
		return nil, fmt.Errorf("%w: connection and signer are required", purchase.ErrInvalidServiceConfig)
	}
	if expectedChainID == 0 {
		return nil, fmt.Errorf("%w: chain id is required", purchase.ErrInvalidServiceConfig)
	}
	return &Session{connection: connection, signer: signer, expectedChainID: expectedChainID}, nil
}

func (session *Session) IsConnected() bool {
	return session.connection.Backend() != nil
}

func (session *Session) IsWrongNetwork() bool {
	return session.connection.ChainID() != session.expectedChainID
}

func (session *Session) ChainID() uint64 {
	return session.connection.ChainID()
}

func (session *Session) Account() purchase.Address {
	if !session.IsConnected() {
		return purchase.Address{}
	}
	return fromCommon(session.signer.Address())
}

// SwitchNetwork re-dials the configured endpoint and re-reads its chain id.
func (session *Session) SwitchNetwork(ctx context.Context) error {
	if err := session.connection.Redial(ctx); err != nil {
		return err
	}
	if session.IsWrongNetwork() {
		return fmt.Errorf("%w: node reports chain %d, expected %d", purchase.ErrWrongNetwork, session.connection.ChainID(), session.expectedChainID)
	}
	return nil
}
