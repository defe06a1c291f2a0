// Package chain implements the ledger gateway and wallet session over an EVM
// JSON-RPC node.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	errorOperationChain  = "chain"
	errorCodeCall        = "call"
	errorCodeDecode      = "decode"
	errorCodeSubmit      = "submit"
	errorCodeSign        = "sign"
	errorCodeReceipt     = "receipt"
	propertyStatusActive = 1
	gasLimitHeadroomPct  = 20
	revertReasonPrefix   = "execution reverted"
	defaultReceiptPoll   = time.Second
)

// Gateway implements purchase.LedgerGateway.
type Gateway struct {
	connection  *Connection
	signer      TxSigner
	marketplace common.Address
	token       common.Address
	receiptPoll time.Duration
	callTimeout time.Duration
	submitMutex sync.Mutex
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithReceiptPollInterval sets how often AwaitTransaction asks for a receipt.
func WithReceiptPollInterval(interval time.Duration) GatewayOption {
	return func(gateway *Gateway) {
		if interval > 0 {
			gateway.receiptPoll = interval
		}
	}
}

// WithCallTimeout bounds each individual RPC.
func WithCallTimeout(timeout time.Duration) GatewayOption {
	return func(gateway *Gateway) {
		if timeout > 0 {
			gateway.callTimeout = timeout
		}
	}
}

// NewGateway wires a Gateway for the marketplace and payment token contracts.
func NewGateway(connection *Connection, signer TxSigner, marketplace purchase.Address, token purchase.Address, options ...GatewayOption) (*Gateway, error) {
	if connection == nil {
		return nil, fmt.Errorf("%w: connection is nil", purchase.ErrInvalidServiceConfig)
	}
	if signer == nil {
		return nil, fmt.Errorf("%w: signer is nil", purchase.ErrInvalidServiceConfig)
	}
	if marketplace.IsZero() || token.IsZero() {
		return nil, fmt.Errorf("%w: contract addresses are required", purchase.ErrInvalidAddress)
	}
	gateway := &Gateway{
		connection:  connection,
		signer:      signer,
		marketplace: toCommon(marketplace),
		token:       toCommon(token),
		receiptPoll: defaultReceiptPoll,
	}
	for _, option := range options {
		if option != nil {
			option(gateway)
		}
	}
	return gateway, nil
}

// Spender returns the marketplace address; it is the account the payment
// token must authorize.
func (gateway *Gateway) Spender() purchase.Address {
	return fromCommon(gateway.marketplace)
}

func (gateway *Gateway) GetProperty(ctx context.Context, property purchase.Address) (purchase.Property, error) {
	values, err := gateway.call(ctx, marketplaceABI, gateway.marketplace, methodGetProperty, toCommon(property))
	if err != nil {
		return purchase.Property{}, err
	}
	price, err := amountAt(values, 0)
	if err != nil {
		return purchase.Property{}, decodeError(methodGetProperty, err)
	}
	fee, err := amountAt(values, 1)
	if err != nil {
		return purchase.Property{}, decodeError(methodGetProperty, err)
	}
	statusValue, ok := values[2].(uint8)
	if !ok {
		return purchase.Property{}, decodeError(methodGetProperty, errors.New("status is not uint8"))
	}
	totalSlots, err := intAt(values, 3)
	if err != nil {
		return purchase.Property{}, decodeError(methodGetProperty, err)
	}
	slotContract, ok := values[5].(common.Address)
	if !ok {
		return purchase.Property{}, decodeError(methodGetProperty, errors.New("slot contract is not an address"))
	}
	status := purchase.PropertyStatusInactive
	if statusValue == propertyStatusActive {
		status = purchase.PropertyStatusActive
	}
	return purchase.Property{
		Address:      property,
		SlotContract: fromCommon(slotContract),
		PricePerSlot: price,
		FeePerSlot:   fee,
		Status:       status,
		TotalSlots:   int(totalSlots),
	}, nil
}

func (gateway *Gateway) GetAvailableSlots(ctx context.Context, property purchase.Address) ([]purchase.SlotID, error) {
	values, err := gateway.call(ctx, marketplaceABI, gateway.marketplace, methodGetProperty, toCommon(property))
	if err != nil {
		return nil, err
	}
	totalSlots, err := intAt(values, 3)
	if err != nil {
		return nil, decodeError(methodGetProperty, err)
	}
	rawIDs, ok := values[4].([]*big.Int)
	if !ok {
		return nil, decodeError(methodGetProperty, errors.New("available slots are not uint256[]"))
	}
	slots := make([]purchase.SlotID, 0, len(rawIDs))
	for _, rawID := range rawIDs {
		if !rawID.IsInt64() {
			return nil, decodeError(methodGetProperty, fmt.Errorf("slot id %s overflows", rawID))
		}
		id, err := purchase.NewSlotID(rawID.Int64(), int(totalSlots))
		if err != nil {
			return nil, decodeError(methodGetProperty, err)
		}
		slots = append(slots, id)
	}
	return slots, nil
}

func (gateway *Gateway) GetTotalSupply(ctx context.Context, slotContract purchase.Address) (int64, error) {
	values, err := gateway.call(ctx, slotContractABI, toCommon(slotContract), methodTotalSupply)
	if err != nil {
		return 0, err
	}
	supply, err := intAt(values, 0)
	if err != nil {
		return 0, decodeError(methodTotalSupply, err)
	}
	return supply, nil
}

func (gateway *Gateway) GetPromoCodeTerms(ctx context.Context, promoHash purchase.PromoHash) (purchase.PromoTerms, error) {
	values, err := gateway.call(ctx, marketplaceABI, gateway.marketplace, methodGetPromoCode, [32]byte(promoHash))
	if err != nil {
		return purchase.PromoTerms{}, err
	}
	fields := make([]int64, 4)
	for index := range fields {
		value, err := intAt(values, index)
		if err != nil {
			return purchase.PromoTerms{}, decodeError(methodGetPromoCode, err)
		}
		fields[index] = value
	}
	return purchase.PromoTerms{
		Percent:          fields[0],
		MaxUse:           fields[1],
		MaxUsePerWallet:  fields[2],
		ExpiresAtUnixUTC: fields[3],
	}, nil
}

func (gateway *Gateway) GetCost(ctx context.Context, property purchase.Address, slotCount int) (purchase.Amount, error) {
	return gateway.callAmount(ctx, marketplaceABI, gateway.marketplace, methodGetCost, toCommon(property), big.NewInt(int64(slotCount)))
}

func (gateway *Gateway) GetCostWithPromo(ctx context.Context, property purchase.Address, slotCount int, promoHash purchase.PromoHash) (purchase.Amount, error) {
	return gateway.callAmount(ctx, marketplaceABI, gateway.marketplace, methodGetCostWithPromo, toCommon(property), big.NewInt(int64(slotCount)), [32]byte(promoHash))
}

func (gateway *Gateway) GetAllowance(ctx context.Context, owner purchase.Address, spender purchase.Address) (purchase.Amount, error) {
	return gateway.callAmount(ctx, tokenABI, gateway.token, methodAllowance, toCommon(owner), toCommon(spender))
}

func (gateway *Gateway) GetBalance(ctx context.Context, owner purchase.Address) (purchase.Amount, error) {
	return gateway.callAmount(ctx, tokenABI, gateway.token, methodBalanceOf, toCommon(owner))
}

func (gateway *Gateway) Approve(ctx context.Context, spender purchase.Address, amount purchase.Amount) (purchase.TxHash, error) {
	return gateway.transact(ctx, tokenABI, gateway.token, methodApprove, toCommon(spender), amount.Big())
}

func (gateway *Gateway) Buy(ctx context.Context, property purchase.Address, slots []purchase.SlotID) (purchase.TxHash, error) {
	return gateway.transact(ctx, marketplaceABI, gateway.marketplace, methodBuy, toCommon(property), slotInts(slots))
}

func (gateway *Gateway) BuyWithPromo(ctx context.Context, property purchase.Address, slots []purchase.SlotID, promoHash purchase.PromoHash, signature purchase.Signature) (purchase.TxHash, error) {
	return gateway.transact(ctx, marketplaceABI, gateway.marketplace, methodBuyWithPromo, toCommon(property), slotInts(slots), [32]byte(promoHash), []byte(signature))
}

// AwaitTransaction polls for the receipt until it is mined or ctx ends. A
// failed receipt is replayed as a call to recover the revert reason.
func (gateway *Gateway) AwaitTransaction(ctx context.Context, hash purchase.TxHash) error {
	txHash := common.HexToHash(hash.String())
	ticker := time.NewTicker(gateway.receiptPoll)
	defer ticker.Stop()
	for {
		receipt, err := gateway.receipt(ctx, txHash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status == types.ReceiptStatusSuccessful {
				return nil
			}
			return purchase.TransactionRevertedError{Reason: gateway.revertReason(ctx, txHash, receipt)}
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return purchase.WrapError(errorOperationChain, "transaction", errorCodeReceipt, fmt.Errorf("%w: %v", purchase.ErrGatewayUnavailable, err))
		}
		select {
		case <-ctx.Done():
			return purchase.WrapError(errorOperationChain, "transaction", errorCodeReceipt, fmt.Errorf("%w: %v", purchase.ErrGatewayUnavailable, ctx.Err()))
		case <-ticker.C:
		}
	}
}

func (gateway *Gateway) receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	callCtx, cancel := gateway.callContext(ctx)
	defer cancel()
	return gateway.connection.Backend().TransactionReceipt(callCtx, hash)
}

// revertReason re-runs a mined transaction as a call at its block. Backends
// that cannot return the transaction yield an empty reason.
func (gateway *Gateway) revertReason(ctx context.Context, hash common.Hash, receipt *types.Receipt) string {
	source, ok := gateway.connection.Backend().(interface {
		TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	})
	if !ok {
		return ""
	}
	callCtx, cancel := gateway.callContext(ctx)
	defer cancel()
	tx, _, err := source.TransactionByHash(callCtx, hash)
	if err != nil || tx == nil {
		return ""
	}
	_, err = gateway.connection.Backend().CallContract(callCtx, ethereum.CallMsg{
		From: gateway.signer.Address(),
		To:   tx.To(),
		Data: tx.Data(),
	}, receipt.BlockNumber)
	if err == nil {
		return ""
	}
	return extractRevertReason(err)
}

func (gateway *Gateway) call(ctx context.Context, contractABI abi.ABI, contract common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, purchase.WrapError(errorOperationChain, method, errorCodeCall, err)
	}
	callCtx, cancel := gateway.callContext(ctx)
	defer cancel()
	output, err := gateway.connection.Backend().CallContract(callCtx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, purchase.WrapError(errorOperationChain, method, errorCodeCall, fmt.Errorf("%w: %v", purchase.ErrGatewayUnavailable, err))
	}
	values, err := contractABI.Unpack(method, output)
	if err != nil {
		return nil, decodeError(method, err)
	}
	return values, nil
}

func (gateway *Gateway) callAmount(ctx context.Context, contractABI abi.ABI, contract common.Address, method string, args ...interface{}) (purchase.Amount, error) {
	values, err := gateway.call(ctx, contractABI, contract, method, args...)
	if err != nil {
		return 0, err
	}
	amount, err := amountAt(values, 0)
	if err != nil {
		return 0, decodeError(method, err)
	}
	return amount, nil
}

func (gateway *Gateway) transact(ctx context.Context, contractABI abi.ABI, contract common.Address, method string, args ...interface{}) (purchase.TxHash, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return purchase.TxHash{}, purchase.WrapError(errorOperationChain, method, errorCodeSubmit, err)
	}
	gateway.submitMutex.Lock()
	defer gateway.submitMutex.Unlock()

	backend := gateway.connection.Backend()
	from := gateway.signer.Address()
	callCtx, cancel := gateway.callContext(ctx)
	defer cancel()

	gasLimit, err := backend.EstimateGas(callCtx, ethereum.CallMsg{From: from, To: &contract, Data: data})
	if err != nil {
		if reason, reverted := asRevert(err); reverted {
			return purchase.TxHash{}, purchase.WrapError(errorOperationChain, method, errorCodeSubmit, purchase.TransactionRevertedError{Reason: reason})
		}
		return purchase.TxHash{}, unavailable(method, err)
	}
	nonce, err := backend.PendingNonceAt(callCtx, from)
	if err != nil {
		return purchase.TxHash{}, unavailable(method, err)
	}
	gasPrice, err := backend.SuggestGasPrice(callCtx)
	if err != nil {
		return purchase.TxHash{}, unavailable(method, err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Gas:      gasLimit + gasLimit*gasLimitHeadroomPct/100,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := gateway.signer.SignTx(tx, new(big.Int).SetUint64(gateway.connection.ChainID()))
	if err != nil {
		return purchase.TxHash{}, purchase.WrapError(errorOperationChain, method, errorCodeSign, fmt.Errorf("%w: %v", purchase.ErrTransactionRejectedByUser, err))
	}
	if err := backend.SendTransaction(callCtx, signed); err != nil {
		return purchase.TxHash{}, unavailable(method, err)
	}
	hash, err := purchase.NewTxHash(signed.Hash().Hex())
	if err != nil {
		return purchase.TxHash{}, purchase.WrapError(errorOperationChain, method, errorCodeSubmit, err)
	}
	return hash, nil
}

func (gateway *Gateway) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if gateway.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, gateway.callTimeout)
}

func unavailable(method string, err error) error {
	return purchase.WrapError(errorOperationChain, method, errorCodeSubmit, fmt.Errorf("%w: %v", purchase.ErrGatewayUnavailable, err))
}

func decodeError(method string, err error) error {
	return purchase.WrapError(errorOperationChain, method, errorCodeDecode, fmt.Errorf("%w: %v", purchase.ErrGatewayUnavailable, err))
}

// asRevert reports whether err is an execution revert and returns its reason.
func asRevert(err error) (string, bool) {
	var dataError rpc.DataError
	if errors.As(err, &dataError) {
		return extractRevertReason(err), true
	}
	if strings.Contains(err.Error(), revertReasonPrefix) {
		return extractRevertReason(err), true
	}
	return "", false
}

func extractRevertReason(err error) string {
	var dataError rpc.DataError
	if errors.As(err, &dataError) {
		if raw, ok := dataError.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(raw); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason
				}
			}
		}
	}
	message := err.Error()
	if index := strings.Index(message, revertReasonPrefix); index >= 0 {
		return strings.TrimSpace(strings.TrimPrefix(message[index+len(revertReasonPrefix):], ":"))
	}
	return message
}

func amountAt(values []interface{}, index int) (purchase.Amount, error) {
	if index >= len(values) {
		return 0, fmt.Errorf("missing output %d", index)
	}
	raw, ok := values[index].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("output %d is not uint256", index)
	}
	return purchase.AmountFromBig(raw)
}

func intAt(values []interface{}, index int) (int64, error) {
	amount, err := amountAt(values, index)
	if err != nil {
		return 0, err
	}
	return amount.Int64(), nil
}

func slotInts(slots []purchase.SlotID) []*big.Int {
	values := make([]*big.Int, len(slots))
	for index, slot := range slots {
		values[index] = big.NewInt(int64(slot.Int()))
	}
	return values
}

func toCommon(address purchase.Address) common.Address {
	return common.HexToAddress(address.Hex())
}

func fromCommon(address common.Address) purchase.Address {
	converted, err := purchase.NewAddress(strings.ToLower(address.Hex()))
	if err != nil {
		return purchase.Address{}
	}
	return converted
}
