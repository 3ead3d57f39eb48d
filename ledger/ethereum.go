package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/optichain/provenance-backend/interfaces"
)

// anchorTxGasLimit covers a plain calldata-carrying transfer; anchor digests
// are 32 bytes so this never runs out.
const anchorTxGasLimit = 100_000

// EthereumLedger implements interfaces.Ledger by writing anchor digests as
// calldata in transactions to a designated anchor address. The transaction
// hash serves as the confirmation reference.
type EthereumLedger struct {
	client     *ethclient.Client
	chainID    *big.Int
	privateKey *ecdsa.PrivateKey
	from       common.Address
	anchorTo   common.Address
	log        *slog.Logger
}

// NewEthereumLedger dials an Ethereum-compatible RPC endpoint and prepares a
// signing ledger client.
//
// Parameters:
//   - rpcAddr: RPC endpoint (e.g. https://rpc.example.org)
//   - privateKeyHex: hex-encoded secp256k1 key funding the anchor transactions
//   - anchorTo: address anchor transactions are sent to
func NewEthereumLedger(ctx context.Context, rpcAddr, privateKeyHex string, anchorTo common.Address, log *slog.Logger) (*EthereumLedger, error) {
	client, err := ethclient.DialContext(ctx, rpcAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial %s: %v", interfaces.ErrLedgerUnavailable, rpcAddr, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read chain id: %v", interfaces.ErrLedgerUnavailable, err)
	}

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger private key: %w", err)
	}

	return &EthereumLedger{
		client:     client,
		chainID:    chainID,
		privateKey: privateKey,
		from:       crypto.PubkeyToAddress(privateKey.PublicKey),
		anchorTo:   anchorTo,
		log:        log,
	}, nil
}

// Submit sends the digest as transaction calldata and returns the
// transaction hash as the confirmation reference. Every failure is wrapped
// as ErrLedgerUnavailable so the anchor publisher treats it as retryable.
func (l *EthereumLedger) Submit(ctx context.Context, digest []byte) (string, error) {
	nonce, err := l.client.PendingNonceAt(ctx, l.from)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read nonce: %v", interfaces.ErrLedgerUnavailable, err)
	}

	gasPrice, err := l.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read gas price: %v", interfaces.ErrLedgerUnavailable, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &l.anchorTo,
		Value:    big.NewInt(0),
		Gas:      anchorTxGasLimit,
		GasPrice: gasPrice,
		Data:     digest,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(l.chainID), l.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign anchor transaction: %w", err)
	}

	if err := l.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("%w: failed to send anchor transaction: %v", interfaces.ErrLedgerUnavailable, err)
	}

	ref := signedTx.Hash().Hex()
	l.log.Info("Submitted anchor transaction",
		slog.String("tx_hash", ref),
		slog.String("to", l.anchorTo.Hex()))

	return ref, nil
}

// Close releases the underlying RPC connection.
func (l *EthereumLedger) Close() {
	l.client.Close()
}
