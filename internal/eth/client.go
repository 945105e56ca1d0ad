package eth

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
)

// Client is the subset of an Ethereum node the engine reads from.
type Client struct {
	rpc *ethclient.Client
}

// NewClient dials url. An empty url falls back to ALCHEMY_URL, read from
// the environment or a .env file in the working directory.
func NewClient(url string) (*Client, error) {
	if url == "" {
		godotenv.Load()
		url = os.Getenv("ALCHEMY_URL")
	}
	if url == "" {
		return nil, fmt.Errorf("no rpc url: pass --rpc or set ALCHEMY_URL in .env")
	}

	rpc, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	return &Client{rpc: rpc}, nil
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.rpc.CallContract(ctx, msg, blockNumber)
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.rpc.SuggestGasPrice(ctx)
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.rpc.BlockNumber(ctx)
}

func (c *Client) Close() {
	c.rpc.Close()
}
