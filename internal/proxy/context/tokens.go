package context

import "math"

const (
	perMessageOverhead = 4
	perToolUseOverhead = 20
	marginFactor       = 0.15
)

// EstimateTokens approximates token count for a string without a real
// tokenizer: ascii and multi-byte-rune characters are weighted separately,
// then a 15% margin is added, matching context_manager.rs's
// estimate_tokens_from_str.
func EstimateTokens(s string) int {
	var ascii, unicode int
	for _, r := range s {
		if r < 128 {
			ascii++
		} else {
			unicode++
		}
	}
	base := math.Ceil(float64(ascii)/4.0) + math.Ceil(float64(unicode)/1.5)
	return int(math.Ceil(base * (1 + marginFactor)))
}

// EstimateUsage sums per-message token estimates plus fixed per-message
// and per-tool-use overheads, optionally reserving an extra budget for
// upcoming reasoning output.
func EstimateUsage(messages []Message, reservedThinkingBudget int) int {
	total := reservedThinkingBudget
	for _, msg := range messages {
		total += perMessageOverhead
		for _, b := range msg.Blocks {
			switch b.Kind {
			case BlockText:
				total += EstimateTokens(b.Text)
			case BlockThinking:
				total += EstimateTokens(b.Thinking)
			case BlockToolUse:
				total += perToolUseOverhead
			}
		}
	}
	return total
}
