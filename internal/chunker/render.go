package chunker

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// WebsiteAnalytics holds aggregated website metrics for one timeframe
type WebsiteAnalytics struct {
	Domain                 string         `json:"domain"`
	UniqueVisitors         int            `json:"uniqueVisitors"`
	NewVisitors            int            `json:"newVisitors"`
	ReturningVisitors      int            `json:"returningVisitors"`
	PageViews              map[string]int `json:"pageViews"`
	AverageSessionDuration float64        `json:"averageSessionDuration"` // seconds
	BounceRate             float64        `json:"bounceRate"`             // percent
	Web3Visitors           int            `json:"web3Visitors"`
	WalletsConnected       int            `json:"walletsConnected"`
	WalletTypes            map[string]int `json:"walletTypes"`
	AverageLoadTime        float64        `json:"averageLoadTime"` // milliseconds
	ErrorRate              float64        `json:"errorRate"`       // percent
}

// ContractInfo identifies a smart contract
type ContractInfo struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	Blockchain  string `json:"blockchain"`
	TokenSymbol string `json:"tokenSymbol"`
}

// Transaction is one contract transaction
type Transaction struct {
	FromAddress string    `json:"from_address"`
	ToAddress   string    `json:"to_address"`
	Value       float64   `json:"value"`
	BlockTime   time.Time `json:"block_time"`
}

// RenderWebsite builds the website facet payload. Sections with no data
// render nothing, so the chunker skips them.
func RenderWebsite(a WebsiteAnalytics) Payload {
	p := Payload{}
	domain := a.Domain
	if domain == "" {
		domain = "Unknown domain"
	}

	totalViews := 0
	for _, v := range a.PageViews {
		totalViews += v
	}

	if a.UniqueVisitors > 0 || totalViews > 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "Website %s had %d unique visitors and %d total page views.", domain, a.UniqueVisitors, totalViews)
		if a.AverageSessionDuration > 0 {
			secs := int(a.AverageSessionDuration)
			fmt.Fprintf(&b, " The average session duration was %d minutes and %d seconds.", secs/60, secs%60)
		}
		if a.BounceRate > 0 {
			fmt.Fprintf(&b, " The bounce rate was %.1f%%.", a.BounceRate)
		}
		p.Set(FacetWebsiteOverview, b.String())
	}

	if len(a.PageViews) > 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "The most visited pages on %s were: %s.", domain, joinTop(a.PageViews, 5, "views"))
		if a.NewVisitors > 0 || a.ReturningVisitors > 0 {
			fmt.Fprintf(&b, " There were %d new visitors and %d returning visitors.", a.NewVisitors, a.ReturningVisitors)
		}
		p.Set(FacetUserBehavior, b.String())
	}

	if a.Web3Visitors > 0 || a.WalletsConnected > 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "%d visitors had Web3 wallets installed, and %d visitors connected their wallets.", a.Web3Visitors, a.WalletsConnected)
		if len(a.WalletTypes) > 0 {
			fmt.Fprintf(&b, " The most common wallet types were: %s.", joinTop(a.WalletTypes, 3, ""))
		}
		p.Set(FacetWeb3Metrics, b.String())
	}

	if a.AverageLoadTime > 0 || a.ErrorRate > 0 {
		p.Set(FacetPerformance, fmt.Sprintf(
			"Pages on %s loaded in %.0f milliseconds on average with an error rate of %.2f%%.",
			domain, a.AverageLoadTime, a.ErrorRate))
	}

	return p
}

// RenderContract builds the contract facet payload from its transactions.
// A contract without transactions renders an empty payload.
func RenderContract(c ContractInfo, txs []Transaction) Payload {
	p := Payload{}
	if len(txs) == 0 {
		return p
	}

	name := c.Name
	if name == "" {
		name = "Unknown contract"
	}
	symbol := c.TokenSymbol
	if symbol == "" {
		symbol = "tokens"
	}
	chain := c.Blockchain
	if chain == "" {
		chain = "Unknown blockchain"
	}

	var volume float64
	senders := make(map[string]int)
	for _, tx := range txs {
		volume += tx.Value
		if tx.FromAddress != "" {
			senders[tx.FromAddress]++
		}
	}

	p.Set(FacetContractOverview, fmt.Sprintf(
		"Smart contract %s (%s) on %s had %d transactions. The total transaction volume was %.2f %s. There were %d unique wallets interacting with this contract.",
		name, shortAddress(c.Address), chain, len(txs), volume, symbol, len(senders)))

	var small, medium, large, whale int
	for _, tx := range txs {
		switch {
		case tx.Value < 0.1:
			small++
		case tx.Value < 1:
			medium++
		case tx.Value < 10:
			large++
		default:
			whale++
		}
	}
	activity := fmt.Sprintf(
		"Transaction sizes for %s: %d small (under 0.1 %s), %d medium (0.1 to 1), %d large (1 to 10), %d whale (10 or more).",
		name, small, symbol, medium, large, whale)
	if len(senders) > 0 {
		short := make(map[string]int, len(senders))
		for addr, n := range senders {
			short[shortAddress(addr)] += n
		}
		activity += fmt.Sprintf(" The most active senders were: %s.", joinTop(short, 3, "transactions"))
	}
	p.Set(FacetUserActivity, activity)

	if len(txs) > 1 {
		first, last := txs[0].BlockTime, txs[0].BlockTime
		for _, tx := range txs[1:] {
			if tx.BlockTime.Before(first) {
				first = tx.BlockTime
			}
			if tx.BlockTime.After(last) {
				last = tx.BlockTime
			}
		}
		if !first.IsZero() {
			days := int(last.Sub(first).Hours() / 24)
			text := fmt.Sprintf("The contract has been active from %s to %s, a period of %d days.",
				first.Format("2006-01-02"), last.Format("2006-01-02"), days)
			if volume > 0 {
				text += fmt.Sprintf(" Average transaction value: %.4f %s.", volume/float64(len(txs)), symbol)
			}
			p.Set(FacetTemporalPatterns, text)
		}
	}

	return p
}

// joinTop renders the n largest counts as "key: count unit", ties by key
func joinTop(counts map[string]int, n int, unit string) string {
	type kv struct {
		key   string
		count int
	}
	entries := make([]kv, 0, len(counts))
	for k, v := range counts {
		entries = append(entries, kv{k, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})
	if len(entries) > n {
		entries = entries[:n]
	}

	parts := make([]string, len(entries))
	for i, e := range entries {
		if unit != "" {
			parts[i] = fmt.Sprintf("%s: %d %s", e.key, e.count, unit)
		} else {
			parts[i] = fmt.Sprintf("%s: %d", e.key, e.count)
		}
	}
	return strings.Join(parts, ", ")
}

func shortAddress(addr string) string {
	if len(addr) > 10 {
		return addr[:6] + "..." + addr[len(addr)-4:]
	}
	if addr == "" {
		return "Unknown address"
	}
	return addr
}
