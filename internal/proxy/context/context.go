// Package context trims tool-call rounds, compresses or strips reasoning
// ("thinking") blocks, and validates reasoning-block signatures against a
// model-family registry across a multi-turn tool loop.
//
// Grounded on _examples/original_source/src-tauri/src/proxy/mappers/context_manager.rs
// and .../proxy/mappers/claude/thinking_utils.rs. The latter file contains
// unresolved git merge-conflict markers in the original tree; the logic
// below is synthesized from the surviving (non-conflicted) behavior plus
// spec.md §4.2, which is unambiguous about the intended outcome: a
// signature is kept only if it is long enough AND its family matches.
package context

// MinSignatureLength is the shortest reasoning-block signature that is
// ever retained (spec §4.2, §8 boundary behavior: 49 chars stripped, 50 kept).
const MinSignatureLength = 50

// Message is a minimal conversation turn shape shared by the context
// manager and the Claude mapper: Role is "user"/"assistant", Blocks holds
// structured content (thinking/text/tool_use/tool_result).
type Message struct {
	Role   string
	Blocks []Block
}

// BlockKind enumerates the content-block variants this package cares about.
type BlockKind int

const (
	BlockText BlockKind = iota
	BlockThinking
	BlockToolUse
	BlockToolResult
)

// Block is a tagged union over the content-block kinds a Message can carry.
type Block struct {
	Kind      BlockKind
	Text      string
	Thinking  string
	Signature string
	ToolUseID string
	ToolName  string
}

// ConversationState is the result of analyzing a message history for tool
// loops, mirroring thinking_utils.rs's ConversationState.
type ConversationState struct {
	InToolLoop       bool
	InterruptedTool  bool
	LastAssistantIdx int
	HasLastAssistant bool
}

func hasKind(blocks []Block, kind BlockKind) bool {
	for _, b := range blocks {
		if b.Kind == kind {
			return true
		}
	}
	return false
}

// AnalyzeConversationState scans history for the last assistant turn and
// classifies the trailing edge of the conversation as an active tool loop,
// an interrupted tool, or neither.
func AnalyzeConversationState(messages []Message) ConversationState {
	var state ConversationState
	if len(messages) == 0 {
		return state
	}

	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" {
			state.LastAssistantIdx = i
			state.HasLastAssistant = true
			break
		}
	}
	if !state.HasLastAssistant {
		return state
	}
	if !hasKind(messages[state.LastAssistantIdx].Blocks, BlockToolUse) {
		return state
	}

	last := messages[len(messages)-1]
	if last.Role != "user" {
		return state
	}
	if hasKind(last.Blocks, BlockToolResult) {
		state.InToolLoop = true
	} else {
		state.InterruptedTool = true
	}
	return state
}

func hasValidThinking(blocks []Block) bool {
	for _, b := range blocks {
		if b.Kind == BlockThinking && b.Thinking != "" && len(b.Signature) >= MinSignatureLength {
			return true
		}
	}
	return false
}

// CloseToolLoopForThinking recovers from broken tool loops or interrupted
// tool calls by injecting synthetic messages, per spec §4.2 Recovery and
// end-to-end scenario 3.
func CloseToolLoopForThinking(messages []Message) []Message {
	state := AnalyzeConversationState(messages)
	if !state.InToolLoop && !state.InterruptedTool {
		return messages
	}
	if state.HasLastAssistant && hasValidThinking(messages[state.LastAssistantIdx].Blocks) {
		return messages
	}

	if state.InToolLoop {
		out := make([]Message, len(messages), len(messages)+2)
		copy(out, messages)
		out = append(out,
			Message{Role: "assistant", Blocks: []Block{{Kind: BlockText, Text: "Tool execution completed. Proceeding to final response."}}},
			Message{Role: "user", Blocks: []Block{{Kind: BlockText, Text: "Please provide the final result based on the tool output above."}}},
		)
		return out
	}

	// Interrupted tool: insert the synthetic closure right after the
	// orphaned tool_use, before the user's latest message.
	idx := state.LastAssistantIdx
	out := make([]Message, 0, len(messages)+1)
	out = append(out, messages[:idx+1]...)
	out = append(out, Message{Role: "assistant", Blocks: []Block{{Kind: BlockText, Text: "Tool call was interrupted by user."}}})
	out = append(out, messages[idx+1:]...)
	return out
}

// FilterInvalidThinkingBlocks strips reasoning-block signatures that are
// too short or belong to a family other than targetFamily (empty string
// means "no target specified"). families resolves a signature to the
// model family that minted it; an unknown signature is treated as
// unverifiable and dropped, matching the original's "cache miss after
// restart" behavior. Any assistant turn left with zero blocks after
// filtering gains a placeholder text block so the turn stays non-empty.
func FilterInvalidThinkingBlocks(messages []Message, targetFamily string, families FamilyLookup) []Message {
	out := make([]Message, len(messages))
	for i, msg := range messages {
		if msg.Role != "assistant" || len(msg.Blocks) == 0 {
			out[i] = msg
			continue
		}
		originalLen := len(msg.Blocks)
		kept := make([]Block, 0, originalLen)
		for _, b := range msg.Blocks {
			if b.Kind != BlockThinking {
				kept = append(kept, b)
				continue
			}
			if len(b.Signature) < MinSignatureLength {
				continue
			}
			if origin, ok := families.Lookup(b.Signature); ok {
				if targetFamily != "" && origin != targetFamily {
					continue
				}
			} else {
				// Unverifiable signature: drop unless this is a fresh
				// session with no recorded families at all.
				continue
			}
			kept = append(kept, b)
		}
		if len(kept) == 0 && originalLen > 0 {
			kept = append(kept, Block{Kind: BlockText, Text: "."})
		}
		out[i] = Message{Role: msg.Role, Blocks: kept}
	}
	return out
}

// FamilyLookup resolves a reasoning-block signature to the model family
// that minted it.
type FamilyLookup interface {
	Lookup(signature string) (family string, ok bool)
}
