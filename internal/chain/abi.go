package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
  {"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

const routerABIJSON = `[
  {"inputs":[
    {"name":"amountIn","type":"uint256"},
    {"name":"amountOutMin","type":"uint256"},
    {"name":"fee","type":"uint256"},
    {"name":"token","type":"address"},
    {"name":"to","type":"address"},
    {"name":"deadline","type":"uint256"}
  ],"name":"protectBuy","outputs":[],"stateMutability":"payable","type":"function"},
  {"inputs":[
    {"name":"amountIn","type":"uint256"},
    {"name":"amountOutMin","type":"uint256"},
    {"name":"token","type":"address"},
    {"name":"to","type":"address"},
    {"name":"deadline","type":"uint256"}
  ],"name":"protectSell","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var (
	erc20ABI  abi.ABI
	routerABI abi.ABI

	// MaxUint256 2^256-1，无限授权
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func init() {
	var err error
	if erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON)); err != nil {
		panic(fmt.Sprintf("解析ERC20 ABI失败: %v", err))
	}
	if routerABI, err = abi.JSON(strings.NewReader(routerABIJSON)); err != nil {
		panic(fmt.Sprintf("解析Router ABI失败: %v", err))
	}
}
