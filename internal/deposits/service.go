// Package deposits verifies on-chain stablecoin deposits into the node
// treasury and credits them to agent balances exactly once.
package deposits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mammothnet/mammoth-node/internal/agents"
	"github.com/mammothnet/mammoth-node/internal/apperr"
	"github.com/mammothnet/mammoth-node/internal/chain"
	"github.com/mammothnet/mammoth-node/internal/models"
	"github.com/mammothnet/mammoth-node/internal/money"
	"github.com/mammothnet/mammoth-node/internal/store"
)

var txHashRe = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

// NormalizeTxHash lowercases and validates a transaction hash,
// returning "" when malformed.
func NormalizeTxHash(hash string) string {
	h := strings.ToLower(strings.TrimSpace(hash))
	if !txHashRe.MatchString(h) {
		return ""
	}
	return h
}

type Service struct {
	store           *store.Store
	client          chain.Client
	treasuryAddress string
	logger          *slog.Logger
}

func NewService(st *store.Store, client chain.Client, treasuryAddress string, logger *slog.Logger) *Service {
	return &Service{
		store:           st,
		client:          client,
		treasuryAddress: agents.NormalizeEthAddress(treasuryAddress),
		logger:          logger,
	}
}

type VerifyParams struct {
	AgentID          string
	Asset            string
	TxHash           string
	ChainID          int64
	MinConfirmations int64
	ActorRole        string
}

type VerifyResult struct {
	AgentID                     string            `json:"agentId"`
	Asset                       string            `json:"asset"`
	TxHash                      string            `json:"txHash"`
	ChainID                     int64             `json:"chainId"`
	CreditedAmount              float64           `json:"creditedAmount"`
	MatchedAddressTransferCount int               `json:"matchedAddressTransferCount"`
	BalanceBefore               float64           `json:"balanceBefore"`
	BalanceAfter                float64           `json:"balanceAfter"`
	Count                       int               `json:"count"`
	Deposits                    []*models.Deposit `json:"deposits"`
	Agent                       *models.Agent     `json:"agent"`
}

// Verify checks a transaction's ERC-20 transfer logs against the node
// treasury and credits every not-yet-seen log to the agent's spendable
// balance. Re-verifying the same transaction is a conflict once all
// its logs are credited.
func (s *Service) Verify(ctx context.Context, p VerifyParams) (*VerifyResult, error) {
	asset := money.Normalize(p.Asset, "")
	if asset == "" || asset == money.AssetCredit {
		return nil, apperr.Validationf("asset must be USDC or USDT")
	}
	chainID := p.ChainID
	if chainID == 0 {
		chainID = 1
	}
	minConfirmations := p.MinConfirmations
	if minConfirmations < 1 {
		minConfirmations = 1
	}
	txHash := NormalizeTxHash(p.TxHash)
	if txHash == "" {
		return nil, apperr.Validationf("valid txHash is required")
	}
	meta, ok := money.Meta[asset]
	if !ok || meta.ChainID != chainID {
		return nil, apperr.Validationf("unsupported asset/chain combination")
	}
	if s.client == nil {
		return nil, apperr.Transientf("eth rpc endpoint is not configured")
	}
	if s.treasuryAddress == "" {
		return nil, apperr.Transientf("node treasury address is not configured")
	}

	var agentAddress string
	agentErr := apperr.NotFoundf("agent not found")
	s.store.View(func(st *models.State) {
		if agent, ok := st.Agents[p.AgentID]; ok {
			agentErr = nil
			agentAddress = agents.NormalizeEthAddress(agent.Wallet.Addresses["eth"])
		}
	})
	if agentErr != nil {
		return nil, agentErr
	}

	receipt, err := s.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil && !errors.Is(err, ethereum.NotFound) {
		return nil, apperr.Transientf("transaction receipt lookup failed: %v", err)
	}
	if err != nil || receipt == nil {
		return nil, apperr.Conflictf("transaction receipt not available yet")
	}
	if receipt.Status != 1 {
		return nil, apperr.Validationf("transaction failed on-chain")
	}
	latestBlock, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, apperr.Transientf("block number lookup failed: %v", err)
	}
	confirmations := int64(latestBlock) - receipt.BlockNumber.Int64() + 1
	if confirmations < 0 {
		confirmations = 0
	}
	if confirmations < minConfirmations {
		return nil, apperr.Conflictf("not enough confirmations (%d < %d)", confirmations, minConfirmations)
	}

	token := common.HexToAddress(meta.ContractAddress)
	treasury := common.HexToAddress(s.treasuryAddress)
	transfers := chain.TreasuryTransfers(receipt, token, treasury)
	if len(transfers) == 0 {
		return nil, apperr.NotFoundf("no matching transfer log for treasury address")
	}

	matchedCount := 0
	if agentAddress != "" {
		for _, t := range transfers {
			if strings.ToLower(t.From.Hex()) == agentAddress {
				matchedCount++
			}
		}
	}

	var res VerifyResult
	var opErr error
	err = s.store.Update(ctx, func(st *models.State) error {
		agent, ok := st.Agents[p.AgentID]
		if !ok {
			return apperr.NotFoundf("agent not found")
		}

		now := time.Now().UTC()
		accepted := []*models.Deposit{}
		creditedRaw := new(big.Int)
		for _, t := range transfers {
			depositID := models.DepositID(chainID, txHash, t.LogIndex)
			if _, seen := st.Crypto.Deposits[depositID]; seen {
				continue
			}
			record := &models.Deposit{
				DepositID:           depositID,
				ChainID:             chainID,
				Asset:               asset,
				TxHash:              txHash,
				LogIndex:            fmt.Sprintf("0x%x", t.LogIndex),
				FromAddress:         strings.ToLower(t.From.Hex()),
				ToAddress:           strings.ToLower(t.To.Hex()),
				AmountRaw:           t.AmountRaw.String(),
				Amount:              money.Round(money.FromRaw(t.AmountRaw, meta.Decimals), asset),
				Confirmations:       confirmations,
				MatchedAgentAddress: agentAddress != "" && strings.ToLower(t.From.Hex()) == agentAddress,
				AgentID:             p.AgentID,
				CreditedAt:          now,
			}
			st.Crypto.Deposits[depositID] = record
			accepted = append(accepted, models.Clone(record))
			creditedRaw.Add(creditedRaw, t.AmountRaw)
		}

		if len(accepted) == 0 {
			opErr = apperr.Conflictf("deposit already credited for this transaction")
			return nil
		}

		creditedAmount := money.Round(money.FromRaw(creditedRaw, meta.Decimals), asset)
		balanceBefore := agent.Spendable(asset)
		balanceAfter := agent.AddSpendable(asset, creditedAmount)
		agent.UpdatedAt = now

		st.AppendEvent("crypto_deposit_verified", p.ActorRole, map[string]any{
			"agentId": p.AgentID, "asset": asset, "txHash": txHash,
			"chainId": chainID, "confirmations": confirmations,
			"count": len(accepted), "matchedAddressTransferCount": matchedCount,
			"amount": creditedAmount, "balanceBefore": balanceBefore,
			"balanceAfter": balanceAfter,
		})

		res = VerifyResult{
			AgentID:                     p.AgentID,
			Asset:                       asset,
			TxHash:                      txHash,
			ChainID:                     chainID,
			CreditedAmount:              creditedAmount,
			MatchedAddressTransferCount: matchedCount,
			BalanceBefore:               balanceBefore,
			BalanceAfter:                balanceAfter,
			Count:                       len(accepted),
			Deposits:                    accepted,
			Agent:                       models.Clone(agent),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}
	return &res, nil
}

type Filter struct {
	AgentID string
	Asset   string
	TxHash  string
	Limit   int
}

// List returns verified deposits, newest first.
func (s *Service) List(f Filter) []*models.Deposit {
	asset := strings.ToUpper(strings.TrimSpace(f.Asset))
	txHash := strings.ToLower(strings.TrimSpace(f.TxHash))
	limit := f.Limit
	if limit < 1 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	out := []*models.Deposit{}
	s.store.View(func(st *models.State) {
		for _, d := range st.Crypto.Deposits {
			if f.AgentID != "" && d.AgentID != f.AgentID {
				continue
			}
			if asset != "" && strings.ToUpper(d.Asset) != asset {
				continue
			}
			if txHash != "" && strings.ToLower(d.TxHash) != txHash {
				continue
			}
			out = append(out, models.Clone(d))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreditedAt.After(out[j].CreditedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
