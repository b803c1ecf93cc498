package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the hot wallet key and builds signed EIP-1559 transactions.
type Signer struct {
	pk   *ecdsa.PrivateKey
	from common.Address
}

func NewSigner(hexKey string) (*Signer, error) {
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("bad private key: %w", err)
	}
	return &Signer{pk: pk, from: crypto.PubkeyToAddress(pk.PublicKey)}, nil
}

func (s *Signer) From() common.Address { return s.from }

// SignTx assembles a DynamicFeeTx with fee cap = tip + 2*baseFee and signs it
// with the London signer.
func (s *Signer) SignTx(ctx context.Context, c Client, to common.Address, data []byte, gasLimit uint64) (*ethtypes.Transaction, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	nonce, err := c.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}

	gasTipCap, err := c.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip cap: %w", err)
	}

	header, err := c.HeaderByNumber(ctx, nil)
	if err != nil || header.BaseFee == nil {
		return nil, fmt.Errorf("get header/base fee: %w", err)
	}
	gasFeeCap := new(big.Int).Add(
		new(big.Int).Mul(header.BaseFee, big.NewInt(2)),
		gasTipCap,
	)

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.NewLondonSigner(chainID), s.pk)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// WaitReceipt polls for the receipt until it lands or the timeout elapses.
func WaitReceipt(ctx context.Context, c Client, hash common.Hash, timeout time.Duration) (*ethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(2 * time.Second)
	defer tick.Stop()
	for {
		rec, err := c.TransactionReceipt(ctx, hash)
		if err == nil && rec != nil {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("receipt wait for %s: %w", hash.Hex(), ctx.Err())
		case <-tick.C:
		}
	}
}
