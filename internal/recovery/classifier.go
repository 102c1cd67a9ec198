package recovery

import "regexp"

// FailureCategory is the broad bucket the circuit breaker weighs
// differently: PERMANENT failures count double toward a trip.
type FailureCategory string

const (
	CategoryTransient FailureCategory = "TRANSIENT"
	CategoryPermanent FailureCategory = "PERMANENT"
	CategoryRateLimit FailureCategory = "RATE_LIMIT"
	CategoryNetwork   FailureCategory = "NETWORK"
	CategoryUnknown   FailureCategory = "UNKNOWN"
)

type pattern struct {
	re       *regexp.Regexp
	category FailureCategory
}

// classifierPatterns is evaluated in order; the first match wins.
var classifierPatterns = []pattern{
	{regexp.MustCompile(`(?i)timeout`), CategoryTransient},
	{regexp.MustCompile(`(?i)transient`), CategoryTransient},
	{regexp.MustCompile(`(?i)temporarily`), CategoryTransient},
	{regexp.MustCompile(`(?i)rate.?limit`), CategoryRateLimit},
	{regexp.MustCompile(`429`), CategoryRateLimit},
	{regexp.MustCompile(`(?i)too many requests`), CategoryRateLimit},
	{regexp.MustCompile(`(?i)insufficient`), CategoryPermanent},
	{regexp.MustCompile(`(?i)invalid`), CategoryPermanent},
	{regexp.MustCompile(`(?i)revert`), CategoryPermanent},
	{regexp.MustCompile(`(?i)nonce too low`), CategoryPermanent},
	{regexp.MustCompile(`(?i)rejected`), CategoryPermanent},
	{regexp.MustCompile(`(?i)dns|econnrefused|enotfound|connectionreset`), CategoryNetwork},
	{regexp.MustCompile(`(?i)network`), CategoryNetwork},
}

// FailureClassifier maps a raw error string to a FailureCategory using
// an ordered pattern table.
type FailureClassifier struct{}

// Classify returns the first matching category for errMsg, or
// CategoryUnknown when nothing matches.
func (FailureClassifier) Classify(errMsg string) FailureCategory {
	if errMsg == "" {
		return CategoryUnknown
	}
	for _, p := range classifierPatterns {
		if p.re.MatchString(errMsg) {
			return p.category
		}
	}
	return CategoryUnknown
}

// IsRetriable reports whether category warrants a leg retry.
func (FailureClassifier) IsRetriable(category FailureCategory) bool {
	switch category {
	case CategoryTransient, CategoryRateLimit, CategoryNetwork:
		return true
	default:
		return false
	}
}
