package eth

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Token addresses, Ethereum mainnet
var (
	WETHAddress = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	USDCAddress = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	USDTAddress = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	DAIAddress  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	WBTCAddress = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
)

const (
	WETHDecimals = 18
	USDCDecimals = 6
	USDTDecimals = 6
	DAIDecimals  = 18
	WBTCDecimals = 8
)

type TokenInfo struct {
	Address  common.Address
	Decimals uint8
	Symbol   string
}

// KnownTokens is keyed by symbol. ETH resolves to WETH since pairs hold the
// wrapped token.
var KnownTokens = map[string]TokenInfo{
	"ETH":  {WETHAddress, WETHDecimals, "WETH"},
	"WETH": {WETHAddress, WETHDecimals, "WETH"},
	"USDC": {USDCAddress, USDCDecimals, "USDC"},
	"USDT": {USDTAddress, USDTDecimals, "USDT"},
	"DAI":  {DAIAddress, DAIDecimals, "DAI"},
	"WBTC": {WBTCAddress, WBTCDecimals, "WBTC"},
}

// DEXConfig is enough to derive any pair address of a Uniswap V2 fork.
type DEXConfig struct {
	Name         string
	Factory      common.Address
	InitCodeHash [32]byte
}

var KnownDEXes = map[string]DEXConfig{
	"uniswap": {
		Name:         "uniswap",
		Factory:      common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
		InitCodeHash: hexToBytes32("96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f"),
	},
	"sushiswap": {
		Name:         "sushiswap",
		Factory:      common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac"),
		InitCodeHash: hexToBytes32("e18a34eb0e04b04f7a0ac29a6e80748dca96319b42c54d679cb821dca90c6303"),
	},
	"shibaswap": {
		Name:         "shibaswap",
		Factory:      common.HexToAddress("0x115934131916C8b277DD010Ee02de363c09d037c"),
		InitCodeHash: hexToBytes32("65d1a3b1e46c6e4f1be1ad5f99ef14dc488ae0549dc97db9b30afe2241ce1c7a"),
	},
}

func hexToBytes32(s string) [32]byte {
	var b [32]byte
	copy(b[:], common.FromHex(s))
	return b
}

// SortTokens orders a pair the way V2 factories do, lower address first.
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b
	}
	return b, a
}

// PairAddress derives the CREATE2 address of the a/b pair on dex.
func PairAddress(dex DEXConfig, a, b common.Address) (common.Address, error) {
	if a == b {
		return common.Address{}, fmt.Errorf("identical tokens %s", a.Hex())
	}
	token0, token1 := SortTokens(a, b)
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(dex.Factory, salt, dex.InitCodeHash[:]), nil
}

// Uniswap V2 pair ABI, reserves and token order only.
const UniswapV2PairABI = `[
	{
		"constant": true,
		"inputs": [],
		"name": "getReserves",
		"outputs": [
			{"internalType": "uint112", "name": "reserve0", "type": "uint112"},
			{"internalType": "uint112", "name": "reserve1", "type": "uint112"},
			{"internalType": "uint32",  "name": "blockTimestampLast", "type": "uint32"}
		],
		"payable": false,
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "token0",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"payable": false,
		"stateMutability": "view",
		"type": "function"
	}
]`
