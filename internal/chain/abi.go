package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const marketplaceABIJSON = `[
  {"type":"function","name":"getProperty","stateMutability":"view",
   "inputs":[{"name":"property","type":"address"}],
   "outputs":[{"name":"price","type":"uint256"},{"name":"fee","type":"uint256"},{"name":"status","type":"uint8"},
              {"name":"totalSlots","type":"uint256"},{"name":"availableSlotIds","type":"uint256[]"},{"name":"slotContract","type":"address"}]},
  {"type":"function","name":"getPromoCode","stateMutability":"view",
   "inputs":[{"name":"promoHash","type":"bytes32"}],
   "outputs":[{"name":"percent","type":"uint256"},{"name":"maxUse","type":"uint256"},{"name":"maxUsePerWallet","type":"uint256"},{"name":"expiresAt","type":"uint256"}]},
  {"type":"function","name":"getCost","stateMutability":"view",
   "inputs":[{"name":"property","type":"address"},{"name":"slotCount","type":"uint256"}],
   "outputs":[{"name":"cost","type":"uint256"}]},
  {"type":"function","name":"getCostWithPromo","stateMutability":"view",
   "inputs":[{"name":"property","type":"address"},{"name":"slotCount","type":"uint256"},{"name":"promoHash","type":"bytes32"}],
   "outputs":[{"name":"cost","type":"uint256"}]},
  {"type":"function","name":"buy","stateMutability":"nonpayable",
   "inputs":[{"name":"property","type":"address"},{"name":"slotIds","type":"uint256[]"}],"outputs":[]},
  {"type":"function","name":"buyWithPromo","stateMutability":"nonpayable",
   "inputs":[{"name":"property","type":"address"},{"name":"slotIds","type":"uint256[]"},{"name":"promoHash","type":"bytes32"},{"name":"signature","type":"bytes"}],"outputs":[]}
]`

const tokenABIJSON = `[
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const slotContractABIJSON = `[
  {"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const (
	methodGetProperty      = "getProperty"
	methodGetPromoCode     = "getPromoCode"
	methodGetCost          = "getCost"
	methodGetCostWithPromo = "getCostWithPromo"
	methodBuy              = "buy"
	methodBuyWithPromo     = "buyWithPromo"
	methodAllowance        = "allowance"
	methodBalanceOf        = "balanceOf"
	methodApprove          = "approve"
	methodTotalSupply      = "totalSupply"
)

var (
	marketplaceABI  = mustParseABI(marketplaceABIJSON)
	tokenABI        = mustParseABI(tokenABIJSON)
	slotContractABI = mustParseABI(slotContractABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
