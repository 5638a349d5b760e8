package fetcher

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var weiPerGwei = decimal.NewFromInt(params.GWei)

// ChainOptions parameterise the on-chain fee reader.
type ChainOptions struct {
	RPCURL  string
	Timeout time.Duration
}

// Chain reads base fee, tip cap and legacy gas price from an Ethereum JSON-RPC node.
type Chain struct {
	opts      ChainOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewChain builds a fee reader. The connection is dialed lazily.
func NewChain(opts ChainOptions, logger zerolog.Logger) *Chain {
	return &Chain{opts: opts, logger: logger.With().Str("component", "chain_fetcher").Logger()}
}

// FetchNetworkFees returns the pending block's base fee plus the node's suggestions.
func (c *Chain) FetchNetworkFees(ctx context.Context) (NetworkFees, error) {
	if c.opts.RPCURL == "" {
		return NetworkFees{}, errors.New("ethereum rpc url not configured")
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return NetworkFees{}, err
	}

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		return NetworkFees{}, err
	}

	history, err := client.FeeHistory(ctx, 1, nil, nil)
	if err != nil {
		return NetworkFees{}, err
	}
	if len(history.BaseFee) == 0 {
		return NetworkFees{}, errors.New("fee history returned no base fee")
	}
	// 最后一个元素是下一个区块的 base fee。
	baseFee := history.BaseFee[len(history.BaseFee)-1]

	tip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return NetworkFees{}, err
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return NetworkFees{}, err
	}

	return NetworkFees{
		BlockNumber: blockNumber,
		BaseFee:     weiToGwei(baseFee),
		TipCap:      weiToGwei(tip),
		GasPrice:    weiToGwei(gasPrice),
	}, nil
}

// Close releases the RPC connection if one was opened.
func (c *Chain) Close() {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

func (c *Chain) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

func weiToGwei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, 0).Div(weiPerGwei)
}

var _ NetworkFeeFetcher = (*Chain)(nil)
