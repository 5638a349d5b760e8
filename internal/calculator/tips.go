package calculator

// Tip is a short piece of fee-saving advice.
type Tip struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

var tips = []Tip{
	{Title: "Time Your Transactions", Category: "timing",
		Content: "Gas fees are typically 30-50% lower during weekends and late night hours (2-6 AM UTC). Plan non-urgent transactions accordingly."},
	{Title: "Use Layer 2 Solutions", Category: "scaling",
		Content: "Save up to 90% on fees using Polygon, Arbitrum, or Optimism. Perfect for DeFi, NFTs, and frequent transactions."},
	{Title: "Batch Your Transactions", Category: "optimization",
		Content: "Group multiple operations together using batch transaction tools. This can reduce total gas costs by 20-40%."},
	{Title: "Set Smart Gas Limits", Category: "limits",
		Content: "Use 21,000 for ETH transfers, 65,000 for ERC-20 tokens. Avoid setting limits too high to prevent overpaying."},
	{Title: "Avoid Peak Hours", Category: "timing",
		Content: "Skip transacting during NFT drops, major DeFi events, or market volatility. Network congestion can increase fees 5-10x."},
	{Title: "Use Gas Trackers", Category: "monitoring",
		Content: "Monitor gas trends and set alerts. Waiting 10-15 minutes during high congestion can save significant fees."},
	{Title: "Consider Gas Tokens", Category: "advanced",
		Content: "Advanced users can mint gas tokens during low-fee periods and burn them during high-fee periods for savings."},
}

// TipCount is the number of tips in the rotation.
func TipCount() int {
	return len(tips)
}

// TipAt returns the tip for a rotation index; any integer wraps, negatives included.
func TipAt(index int) Tip {
	n := len(tips)
	return tips[((index%n)+n)%n]
}
