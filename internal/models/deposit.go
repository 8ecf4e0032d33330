package models

import (
	"fmt"
	"time"
)

// Deposit records one verified on-chain transfer log. Its id is the
// idempotency key: a (chainId, txHash, logIndex) triple is credited at most
// once, no matter how often verification is retried.
type Deposit struct {
	DepositID           string    `json:"depositId"`
	ChainID             int64     `json:"chainId"`
	Asset               string    `json:"asset"`
	TxHash              string    `json:"txHash"`
	LogIndex            string    `json:"logIndex"`
	FromAddress         string    `json:"fromAddress"`
	ToAddress           string    `json:"toAddress"`
	AmountRaw           string    `json:"amountRaw"`
	Amount              float64   `json:"amount"`
	Confirmations       int64     `json:"confirmations"`
	MatchedAgentAddress bool      `json:"matchedAgentAddress"`
	AgentID             string    `json:"agentId"`
	CreditedAt          time.Time `json:"creditedAt"`
}

// DepositID builds the idempotency key for a transfer log.
func DepositID(chainID int64, txHash string, logIndex uint) string {
	return fmt.Sprintf("%d:%s:0x%x", chainID, txHash, logIndex)
}

func (d *Deposit) VersionTime() time.Time { return d.CreditedAt }
