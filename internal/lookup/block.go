package lookup

import (
	"context"
	"strconv"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/bera-mcp/internal/errors"
	"github.com/ggonzalez94/bera-mcp/internal/model"
)

const (
	BlockStatusError    = "error"
	BlockStatusNotFound = "not found"
)

// BlockResult is either a status with the echoed hash, or the block inlined.
type BlockResult struct {
	Status             string `json:"status,omitempty"`
	Message            string `json:"message,omitempty"`
	RequestedBlockHash string `json:"requestedBlockHash,omitempty"`
	*BlockView
}

type BlockView struct {
	BlockNumber      uint64   `json:"blockNumber"`
	BlockHash        string   `json:"blockHash"`
	Timestamp        string   `json:"timestamp"`
	ParentHash       string   `json:"parentHash"`
	Miner            string   `json:"miner"`
	GasUsed          string   `json:"gasUsed"`
	GasLimit         string   `json:"gasLimit"`
	Nonce            string   `json:"nonce"`
	Difficulty       string   `json:"difficulty"`
	ExtraData        string   `json:"extraData"`
	Transactions     []string `json:"transactions"`
	TransactionCount int      `json:"transactionCount"`
}

// MalformedBlockHash reports the result for a hash without the 0x prefix.
// Such input is answered without touching the node.
func MalformedBlockHash(blockHash string) (BlockResult, bool) {
	if strings.HasPrefix(blockHash, "0x") {
		return BlockResult{}, false
	}
	return BlockResult{
		Status:             BlockStatusError,
		Message:            "Invalid block hash format. Block hash must start with 0x.",
		RequestedBlockHash: blockHash,
	}, true
}

func (s *Service) Block(ctx context.Context, blockHash string) (BlockResult, error) {
	if res, bad := MalformedBlockHash(blockHash); bad {
		return res, nil
	}
	hash, err := parseHash(blockHash, "block")
	if err != nil {
		return BlockResult{}, err
	}
	block, err := s.reader.BlockByHash(ctx, hash)
	if clierr.Is(err, clierr.CodeNotFound) {
		return BlockResult{
			Status:             BlockStatusNotFound,
			Message:            "Block with this hash was not found on the blockchain",
			RequestedBlockHash: blockHash,
		}, nil
	}
	if err != nil {
		return BlockResult{}, err
	}

	txs := make([]string, len(block.Transactions))
	for i, h := range block.Transactions {
		txs[i] = h.Hex()
	}
	nonce := block.Nonce
	if nonce == "" {
		nonce = "0x0"
	}
	difficulty := "0"
	if block.Difficulty != nil {
		difficulty = block.Difficulty.ToInt().String()
	}
	return BlockResult{BlockView: &BlockView{
		BlockNumber:      uint64(block.Number),
		BlockHash:        block.Hash.Hex(),
		Timestamp:        model.Timestamp(time.Unix(int64(block.Timestamp), 0)),
		ParentHash:       block.ParentHash.Hex(),
		Miner:            block.Miner.Hex(),
		GasUsed:          strconv.FormatUint(uint64(block.GasUsed), 10),
		GasLimit:         strconv.FormatUint(uint64(block.GasLimit), 10),
		Nonce:            nonce,
		Difficulty:       difficulty,
		ExtraData:        block.ExtraData.String(),
		Transactions:     txs,
		TransactionCount: len(txs),
	}}, nil
}
