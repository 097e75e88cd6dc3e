package onchain

// wallet.go: Polygon wallet access for live trading.
//
// Reads the USDC.e balance used to reconcile the ledger, sets the one-time
// approvals the CTF exchanges need before a BUY can settle, and redeems
// winning conditional tokens back into USDC.e once a market resolves.

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

const (
	polygonChainID = int64(137)

	// USDC.e collateral on Polygon
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

	// CTF contract: holds conditional tokens (ERC1155)
	ctfAddress = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"

	// Exchange contracts that need ERC1155 setApprovalForAll
	normalExchange  = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	negRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
	negRiskAdapter  = "0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296"

	// Gas limits (conservative upper bounds)
	redeemGasLimit   = uint64(200_000)
	approvalGasLimit = uint64(80_000)

	gasPriceUpdateInterval = 5 * time.Minute
	receiptTimeout         = 60 * time.Second

	// 6 decimales tanto para USDC.e como para los conditional tokens
	unitScale = 1e6
)

// Contract ABIs
var (
	ctfABI     abi.ABI
	erc1155ABI abi.ABI
	erc20ABI   abi.ABI
)

func init() {
	var err error

	ctfABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "redeemPositions",
			"type": "function",
			"inputs": [
				{"name": "collateralToken", "type": "address"},
				{"name": "parentCollectionId", "type": "bytes32"},
				{"name": "conditionId", "type": "bytes32"},
				{"name": "indexSets", "type": "uint256[]"}
			],
			"outputs": []
		}
	]`))
	if err != nil {
		panic("ctf abi parse: " + err.Error())
	}

	erc1155ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "setApprovalForAll",
			"type": "function",
			"inputs": [
				{"name": "operator", "type": "address"},
				{"name": "approved", "type": "bool"}
			],
			"outputs": []
		},
		{
			"name": "isApprovedForAll",
			"type": "function",
			"inputs": [
				{"name": "account", "type": "address"},
				{"name": "operator", "type": "address"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "balanceOf",
			"type": "function",
			"inputs": [
				{"name": "account", "type": "address"},
				{"name": "id", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("erc1155 abi parse: " + err.Error())
	}

	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "approve",
			"type": "function",
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "balanceOf",
			"type": "function",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}
}

// chainClient is the subset of ethclient.Client the wallet uses.
type chainClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Wallet implements ports.BalanceSource and ports.Redeemer.
type Wallet struct {
	client     chainClient
	privateKey *ecdsa.PrivateKey
	address    common.Address

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// NewWallet connects to the given Polygon RPC.
// privateKeyHex may carry a 0x prefix.
func NewWallet(rpcURL, privateKeyHex string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid private key: %w", err)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("wallet: dial rpc %s: %w", rpcURL, err)
	}

	return newWallet(client, key), nil
}

func newWallet(client chainClient, key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		client:     client,
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the wallet address.
func (w *Wallet) Address() string {
	return w.address.Hex()
}

// Balance returns the spendable USDC.e balance in dollars.
func (w *Wallet) Balance(ctx context.Context) (float64, error) {
	raw, err := w.callUint(ctx, erc20ABI, common.HexToAddress(usdcEAddress), "balanceOf", w.address)
	if err != nil {
		return 0, fmt.Errorf("wallet.Balance: %v: %w", err, domain.ErrTransient)
	}
	return fromUnits(raw), nil
}

// TokenBalance returns the ERC-1155 balance of a conditional token in shares.
func (w *Wallet) TokenBalance(ctx context.Context, tokenID string) (float64, error) {
	tid, err := parseTokenID(tokenID)
	if err != nil {
		return 0, fmt.Errorf("wallet.TokenBalance: %w", err)
	}
	raw, err := w.callUint(ctx, erc1155ABI, common.HexToAddress(ctfAddress), "balanceOf", w.address, tid)
	if err != nil {
		return 0, fmt.Errorf("wallet.TokenBalance: %v: %w", err, domain.ErrTransient)
	}
	return fromUnits(raw), nil
}

// Redeem converts the winning side of a resolved position into USDC.e.
// Positions with no tokens left are skipped. NegRisk markets are not
// supported: they redeem through the NegRisk adapter with per-market amounts.
func (w *Wallet) Redeem(ctx context.Context, pos domain.Position) error {
	if pos.NegRisk {
		return fmt.Errorf("wallet.Redeem %s: neg-risk redemption not supported", pos.ConditionID)
	}

	held, err := w.TokenBalance(ctx, pos.TokenID)
	if err != nil {
		return fmt.Errorf("wallet.Redeem: %w", err)
	}
	if held <= 0 {
		slog.Debug("wallet: nothing to redeem", "condition_id", pos.ConditionID)
		return nil
	}

	condBytes, err := hexToBytes32(pos.ConditionID)
	if err != nil {
		return fmt.Errorf("wallet.Redeem: condition id: %w", err)
	}

	callData, err := ctfABI.Pack("redeemPositions",
		common.HexToAddress(usdcEAddress),
		[32]byte{},
		condBytes,
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
	)
	if err != nil {
		return fmt.Errorf("wallet.Redeem: pack: %w", err)
	}

	txHash, err := w.sendTx(ctx, common.HexToAddress(ctfAddress), callData, redeemGasLimit, true)
	if err != nil {
		return fmt.Errorf("wallet.Redeem %s: %w", pos.ConditionID, err)
	}

	slog.Info("wallet: redeemed",
		"condition_id", pos.ConditionID,
		"shares", fmt.Sprintf("%.2f", held),
		"tx", txHash.Hex(),
	)
	return nil
}

// EnsureApprovals checks and sets both:
//   - ERC1155 setApprovalForAll on the three exchange contracts (for token transfers)
//   - ERC20 USDC.e approve for both exchange contracts (for BUY collateral)
func (w *Wallet) EnsureApprovals(ctx context.Context) error {
	ctf := common.HexToAddress(ctfAddress)
	for _, op := range []string{normalExchange, negRiskExchange, negRiskAdapter} {
		operator := common.HexToAddress(op)
		approved, err := w.isApprovedForAll(ctx, operator)
		if err != nil {
			return fmt.Errorf("wallet: check ERC1155 approval for %s: %w", op, err)
		}
		if approved {
			slog.Debug("wallet: ERC1155 approval already set", "operator", op)
			continue
		}

		slog.Info("wallet: setting ERC1155 approval", "operator", op)
		callData, err := erc1155ABI.Pack("setApprovalForAll", operator, true)
		if err != nil {
			return err
		}
		if _, err := w.sendTx(ctx, ctf, callData, approvalGasLimit, false); err != nil {
			return fmt.Errorf("wallet: set ERC1155 approval for %s: %w", op, err)
		}
	}

	usdc := common.HexToAddress(usdcEAddress)
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	minAllowance := new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000)) // 1M USDC.e

	for _, ex := range []string{normalExchange, negRiskExchange} {
		spender := common.HexToAddress(ex)
		allowance, err := w.callUint(ctx, erc20ABI, usdc, "allowance", w.address, spender)
		if err != nil {
			return fmt.Errorf("wallet: check USDC.e allowance for %s: %w", ex, err)
		}
		if allowance.Cmp(minAllowance) >= 0 {
			slog.Debug("wallet: USDC.e allowance sufficient", "exchange", ex)
			continue
		}

		slog.Info("wallet: setting USDC.e approval", "exchange", ex)
		callData, err := erc20ABI.Pack("approve", spender, maxUint256)
		if err != nil {
			return err
		}
		if _, err := w.sendTx(ctx, usdc, callData, approvalGasLimit, false); err != nil {
			return fmt.Errorf("wallet: set USDC.e approval for %s: %w", ex, err)
		}
	}
	return nil
}

// isApprovedForAll checks ERC1155 approval for an operator on the CTF contract.
func (w *Wallet) isApprovedForAll(ctx context.Context, operator common.Address) (bool, error) {
	out, err := w.call(ctx, erc1155ABI, common.HexToAddress(ctfAddress), "isApprovedForAll", w.address, operator)
	if err != nil {
		return false, err
	}
	approved, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("isApprovedForAll: unexpected %T", out[0])
	}
	return approved, nil
}

func (w *Wallet) callUint(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) (*big.Int, error) {
	out, err := w.call(ctx, contract, to, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected %T", method, out[0])
	}
	return v, nil
}

func (w *Wallet) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	callData, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: pack: %w", method, err)
	}
	result, err := w.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: call: %w", method, err)
	}
	out, err := contract.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("%s: unpack: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return out, nil
}

// sendTx signs, sends and waits for a transaction. With estimate=true the gas
// limit comes from EstimateGas plus 20%, falling back to gasLimit.
func (w *Wallet) sendTx(ctx context.Context, to common.Address, data []byte, gasLimit uint64, estimate bool) (common.Hash, error) {
	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}

	gasPrice, err := w.gasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}

	if estimate {
		est, err := w.client.EstimateGas(ctx, ethereum.CallMsg{From: w.address, To: &to, GasPrice: gasPrice, Data: data})
		if err != nil {
			slog.Warn("wallet: gas estimate failed, using default", "err", err, "limit", gasLimit)
		} else {
			gasLimit = est * 12 / 10
		}
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(polygonChainID)), w.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}

	receiptCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	receipt, err := w.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return signed.Hash(), fmt.Errorf("wait receipt %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return signed.Hash(), fmt.Errorf("tx %s reverted", signed.Hash().Hex())
	}
	return signed.Hash(), nil
}

// gasPrice returns the current gas price plus 10%, cached to avoid excessive RPC calls.
func (w *Wallet) gasPrice(ctx context.Context) (*big.Int, error) {
	w.mu.RLock()
	cached := w.cachedGasWei
	updatedAt := w.gasUpdatedAt
	w.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached, nil
	}

	price, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return big.NewInt(30_000_000_000), nil // 30 gwei fallback
	}

	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	w.mu.Lock()
	w.cachedGasWei = buffered
	w.gasUpdatedAt = time.Now()
	w.mu.Unlock()

	return buffered, nil
}

// waitForReceipt polls for a transaction receipt until confirmed or timeout.
func (w *Wallet) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := w.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}

// fromUnits converts a 6-decimal on-chain amount to a float.
func fromUnits(raw *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(unitScale)).Float64()
	return f
}

// parseTokenID accepts decimal (CLOB format) or 0x-prefixed hex token IDs.
func parseTokenID(tokenID string) (*big.Int, error) {
	tid := new(big.Int)
	if _, ok := tid.SetString(tokenID, 10); ok {
		return tid, nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(tokenID, "0x"))
	if err != nil || len(b) == 0 {
		return nil, fmt.Errorf("invalid token id %q", tokenID)
	}
	return tid.SetBytes(b), nil
}

// hexToBytes32 converts a 0x-prefixed hex string to [32]byte.
func hexToBytes32(s string) ([32]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return [32]byte{}, fmt.Errorf("expected 64 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return [32]byte{}, err
	}
	var arr [32]byte
	copy(arr[:], b)
	return arr, nil
}
