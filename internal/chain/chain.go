// Package chain wraps the Ethereum JSON-RPC access needed for deposit
// verification.
package chain

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// TransferTopic is keccak256("Transfer(address,address,uint256)"), the
// first topic of every ERC-20 transfer log.
var TransferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55aebcce7b3c0")

// Client is the slice of the Ethereum RPC surface deposit verification
// uses. *ethclient.Client satisfies it; tests substitute a fake.
type Client interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	return ethclient.DialContext(ctx, rpcURL)
}

// Transfer is one decoded ERC-20 transfer into the treasury.
type Transfer struct {
	LogIndex  uint
	TxHash    string
	From      common.Address
	To        common.Address
	AmountRaw *big.Int
}

// TreasuryTransfers extracts the receipt's transfer logs emitted by
// the token contract and destined for the treasury address. Zero and
// malformed amounts are skipped.
func TreasuryTransfers(receipt *types.Receipt, token, treasury common.Address) []Transfer {
	transfers := []Transfer{}
	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != token {
			continue
		}
		if len(lg.Topics) < 3 || lg.Topics[0] != TransferTopic {
			continue
		}
		to := common.BytesToAddress(lg.Topics[2].Bytes())
		if to != treasury {
			continue
		}
		amount := new(big.Int).SetBytes(lg.Data)
		if amount.Sign() <= 0 {
			continue
		}
		transfers = append(transfers, Transfer{
			LogIndex:  lg.Index,
			TxHash:    strings.ToLower(lg.TxHash.Hex()),
			From:      common.BytesToAddress(lg.Topics[1].Bytes()),
			To:        to,
			AmountRaw: amount,
		})
	}
	return transfers
}
