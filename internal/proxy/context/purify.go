package context

// Strategy selects how aggressively reasoning blocks are stripped from
// older turns. Soft keeps the last four messages untouched; Aggressive
// strips reasoning from everything.
type Strategy int

const (
	Soft Strategy = iota
	Aggressive
)

// protectedTailSoft is how many trailing messages Soft leaves untouched.
const protectedTailSoft = 4

// PurifyHistory strips (Soft) or compresses (when compress is true)
// thinking blocks from the conversation according to strategy, leaving the
// protected tail (Soft only) untouched.
func PurifyHistory(messages []Message, strategy Strategy, compress bool) []Message {
	protectedFrom := 0
	if strategy == Soft && len(messages) > protectedTailSoft {
		protectedFrom = len(messages) - protectedTailSoft
	}

	out := make([]Message, len(messages))
	for i, msg := range messages {
		if strategy == Soft && i >= protectedFrom {
			out[i] = msg
			continue
		}
		out[i] = stripOrCompressThinking(msg, compress)
	}
	return out
}

func stripOrCompressThinking(msg Message, compress bool) Message {
	if !hasKind(msg.Blocks, BlockThinking) {
		return msg
	}
	kept := make([]Block, 0, len(msg.Blocks))
	for _, b := range msg.Blocks {
		if b.Kind != BlockThinking {
			kept = append(kept, b)
			continue
		}
		if compress && b.Signature != "" {
			// Compression preserves the signature and replaces the text,
			// so upstream still sees a continuous reasoning chain.
			kept = append(kept, Block{Kind: BlockThinking, Thinking: "...", Signature: b.Signature})
			continue
		}
		// Strip: drop the block entirely.
	}
	return Message{Role: msg.Role, Blocks: kept}
}

// IdentifyToolRounds partitions messages into tool rounds: each round is
// one assistant(tool_use) turn followed by one or more user(tool_result)
// turns, ending at the next plain-user turn. Messages preceding the first
// tool_use (or between rounds) that aren't part of any round are returned
// as a leading "prefix" segment in rounds[0] when non-empty — callers that
// only want rounds for trimming should check each round's first message
// role before treating it as trimmable.
type ToolRound struct {
	Start, End int // half-open [Start, End) indices into the original slice
}

// IdentifyToolRounds finds all tool rounds in messages.
func IdentifyToolRounds(messages []Message) []ToolRound {
	var rounds []ToolRound
	i := 0
	for i < len(messages) {
		if messages[i].Role == "assistant" && hasKind(messages[i].Blocks, BlockToolUse) {
			start := i
			j := i + 1
			for j < len(messages) && messages[j].Role == "user" && hasKind(messages[j].Blocks, BlockToolResult) {
				j++
			}
			rounds = append(rounds, ToolRound{Start: start, End: j})
			i = j
			continue
		}
		i++
	}
	return rounds
}

// TrimToolRounds keeps only the last maxRounds tool rounds (oldest dropped
// first), preserving in-round ordering and never splitting a round. Any
// messages before the first kept round (including a non-round prefix) are
// dropped; messages after the last round are kept as-is.
func TrimToolRounds(messages []Message, maxRounds int) []Message {
	rounds := IdentifyToolRounds(messages)
	if len(rounds) <= maxRounds {
		return messages
	}
	dropCount := len(rounds) - maxRounds
	firstKept := rounds[dropCount].Start
	out := make([]Message, len(messages)-firstKept)
	copy(out, messages[firstKept:])
	return out
}
