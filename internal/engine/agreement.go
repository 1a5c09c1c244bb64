package engine

import "strings"

// Detector decides whether a message signals agreement with the other
// participant. The detection strategy is replaceable policy, not a
// contract; swap it via Options.Detector without touching the engine.
type Detector func(text string) bool

// defaultSignals are the phrases the default detector looks for.
var defaultSignals = []string{
	"i agree",
	"we agree",
	"consensus",
	"common ground",
	"we've reached",
	"i concur",
	"you're right",
	"you are right",
	"that's a fair point",
	"i accept",
	"we can conclude",
	"in agreement",
}

// DetectAgreement is the default phrase-matching detector.
func DetectAgreement(text string) bool {
	lower := strings.ToLower(text)
	for _, signal := range defaultSignals {
		if strings.Contains(lower, signal) {
			return true
		}
	}
	return false
}
