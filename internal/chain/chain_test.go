package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	token    = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000beef1")
	sender   = common.HexToAddress("0x00000000000000000000000000000000000cafe2")
)

func topicOf(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func TestTreasuryTransfersFiltersLogs(t *testing.T) {
	receipt := &types.Receipt{
		Logs: []*types.Log{
			// 1. valid transfer into the treasury
			{
				Address: token,
				Topics:  []common.Hash{TransferTopic, topicOf(sender), topicOf(treasury)},
				Data:    big.NewInt(1_500_000).Bytes(),
				Index:   3,
			},
			// 2. other token contract
			{
				Address: common.HexToAddress("0x00000000000000000000000000000000000dead4"),
				Topics:  []common.Hash{TransferTopic, topicOf(sender), topicOf(treasury)},
				Data:    big.NewInt(1).Bytes(),
			},
			// 3. not a transfer event
			{
				Address: token,
				Topics:  []common.Hash{common.HexToHash("0x01"), topicOf(sender), topicOf(treasury)},
				Data:    big.NewInt(1).Bytes(),
			},
			// 4. transfer to someone else
			{
				Address: token,
				Topics:  []common.Hash{TransferTopic, topicOf(sender), topicOf(sender)},
				Data:    big.NewInt(1).Bytes(),
			},
			// 5. zero amount
			{
				Address: token,
				Topics:  []common.Hash{TransferTopic, topicOf(sender), topicOf(treasury)},
				Data:    nil,
			},
			// 6. missing indexed topics
			{
				Address: token,
				Topics:  []common.Hash{TransferTopic},
				Data:    big.NewInt(1).Bytes(),
			},
		},
	}

	transfers := TreasuryTransfers(receipt, token, treasury)
	if len(transfers) != 1 {
		t.Fatalf("transfers = %d, want 1", len(transfers))
	}
	tr := transfers[0]
	if tr.LogIndex != 3 || tr.From != sender || tr.To != treasury {
		t.Errorf("transfer = %+v", tr)
	}
	if tr.AmountRaw.Int64() != 1_500_000 {
		t.Errorf("amount = %s", tr.AmountRaw)
	}
}
