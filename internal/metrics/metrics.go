package metrics

import "expvar"

var (
	Cycles         = expvar.NewInt("sniper_cycles")
	Sweeps         = expvar.NewInt("sniper_sweeps")
	Candidates     = expvar.NewInt("sniper_candidates_selected")
	BuysConfirmed  = expvar.NewInt("sniper_buys_confirmed")
	BuysFailed     = expvar.NewInt("sniper_buys_failed")
	SellsConfirmed = expvar.NewInt("sniper_sells_confirmed")
	SellsFailed    = expvar.NewInt("sniper_sells_failed")
	DiscoveryErrs  = expvar.NewInt("sniper_discovery_errors")
	Holdings       = expvar.NewInt("sniper_holdings")

	// PriceOutcomes 按 success/empty/failed 计数
	PriceOutcomes = expvar.NewMap("sniper_price_outcomes")
)
