package billing

// Config carries the tunables of the completion invoicing model. The
// upfront/remainder split is configuration, never a literal at call sites.
type Config struct {
	// UpfrontRateBps is the upfront share of the budget in basis points
	// (1200 = 12%).
	UpfrontRateBps int64
}

// DefaultConfig is the production split: 12% upfront, 88% across tasks.
var DefaultConfig = Config{UpfrontRateBps: 1200}

const bpsScale = 10000

// roundDiv divides a by b rounding half up. a and b must be non-negative.
func roundDiv(a, b int64) int64 {
	return (a + b/2) / b
}

// UpfrontAmount returns the upfront invoice amount in cents for a budget.
func (c Config) UpfrontAmount(totalBudget int64) int64 {
	return roundDiv(totalBudget*c.UpfrontRateBps, bpsScale)
}

// ManualCap returns the ceiling on cumulative manual invoicing: the share of
// the budget not covered by the upfront payment.
func (c Config) ManualCap(totalBudget int64) int64 {
	return roundDiv(totalBudget*(bpsScale-c.UpfrontRateBps), bpsScale)
}

// ManualInvoiceAmount returns the per-task manual invoice estimate: the
// non-upfront share of the budget split evenly across tasks, rounded to the
// cent. Rejects a non-positive task count.
func (c Config) ManualInvoiceAmount(totalBudget int64, totalTasks int) (int64, error) {
	if totalTasks <= 0 {
		return 0, ErrInvalidProjectConfig
	}
	return roundDiv(totalBudget*(bpsScale-c.UpfrontRateBps), int64(totalTasks)*bpsScale), nil
}

// FinalAmount returns the payment that closes out the project: the budget
// minus everything actually paid so far. It works from real paid amounts, not
// the per-task estimate, so manual invoices paid at a different count than
// planned still reconcile exactly. Rounding drift that would push the result
// negative is absorbed: the final amount is clamped at zero.
func FinalAmount(totalBudget, sumPaid int64) int64 {
	final := totalBudget - sumPaid
	if final < 0 {
		final = 0
	}
	return final
}
