package game

// Evaluate scores guess against secret. Both strings must have equal length.
//
// Scoring uses strict per-digit remaining-count accounting (two passes): a
// digit contributes a blow only while the secret still has an unmatched copy
// of it. The naive containment check would over-count blows when duplicates
// are allowed; the strict rule is deliberate and covered by tests. For
// duplicate-free strings both rules agree.
func Evaluate(secret, guess string) Result {
	var res Result
	var remaining [10]int

	for i := 0; i < len(secret) && i < len(guess); i++ {
		if secret[i] == guess[i] {
			res.Hit++
		} else {
			remaining[secret[i]-'0']++
		}
	}
	for i := 0; i < len(secret) && i < len(guess); i++ {
		if secret[i] == guess[i] {
			continue
		}
		d := guess[i] - '0'
		if remaining[d] > 0 {
			res.Blow++
			remaining[d]--
		}
	}
	return res
}

// IsGameClear reports whether a result wins the game.
func IsGameClear(res Result, cfg Config) bool { return res.Hit == cfg.Digits }

// FirstClear returns the index of the earliest guess that fully matches
// secret, or -1 when none does.
func FirstClear(guesses []string, secret string, cfg Config) int {
	for i, g := range guesses {
		if IsGameClear(Evaluate(secret, g), cfg) {
			return i
		}
	}
	return -1
}
