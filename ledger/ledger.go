// Package ledger mints finished games as NFTs.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

const (
	ChainID     = 10143
	ExplorerURL = "https://testnet.monadexplorer.com"
	zeroAddress = "0x0000000000000000000000000000000000000000"
)

var ErrInvalidRequest = errors.New("invalid mint request")

type MintRequest struct {
	GameID   string
	Creator  string
	TokenURI string
}

type Receipt struct {
	TxHash      string `json:"txHash"`
	TokenID     int64  `json:"tokenId"`
	ContractRef string `json:"contractAddress"`
	ExplorerURL string `json:"explorerUrl"`
	Simulated   bool   `json:"simulated"`
}

type Contracts struct {
	ChainID     int    `json:"chainId"`
	ContractRef string `json:"gameNFT"`
	Simulated   bool   `json:"simulated"`
}

type Minter interface {
	Mint(ctx context.Context, req MintRequest) (Receipt, error)
	Contracts() Contracts
}

type Config struct {
	RPCURL     string
	PrivateKey string
}

// New returns the minter for cfg. Only the simulated ledger is built in, so
// configured credentials are reported and otherwise ignored.
func New(cfg Config, logger *slog.Logger) Minter {
	if cfg.PrivateKey != "" {
		logger.Warn("deployer key configured but on-chain minting is not available; using simulated ledger",
			"rpc", cfg.RPCURL)
	}
	return NewSimulated()
}

// Simulated fabricates receipts without touching a chain.
type Simulated struct {
	tokenID func() int64
}

func NewSimulated() *Simulated {
	return &Simulated{tokenID: func() int64 { return rand.Int64N(10000) + 1 }}
}

func (s *Simulated) Mint(ctx context.Context, req MintRequest) (Receipt, error) {
	if req.GameID == "" || req.Creator == "" {
		return Receipt{}, ErrInvalidRequest
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	tx := "0x" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return Receipt{
		TxHash:      tx,
		TokenID:     s.tokenID(),
		ContractRef: zeroAddress,
		ExplorerURL: ExplorerURL + "/tx/" + tx,
		Simulated:   true,
	}, nil
}

func (s *Simulated) Contracts() Contracts {
	return Contracts{ChainID: ChainID, ContractRef: zeroAddress, Simulated: true}
}
