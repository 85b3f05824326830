package handlers

import (
	"log"

	pctx "github.com/nexusgate/oauth-llm-nexus/internal/proxy/context"
)

// maxToolRoundsKept bounds how many trailing tool_use/tool_result rounds
// are forwarded upstream; older rounds are dropped wholesale rather than
// letting a long-running agent session grow the request body without bound.
const maxToolRoundsKept = 20

// purifyRawMessages trims stale tool rounds and compresses older reasoning
// blocks (keeping their signature, per spec §4.2) out of a raw Claude
// messages array, before the per-block Gemini conversion below runs.
//
// Block counts and ordering are preserved 1:1 by context.PurifyHistory
// (compress=true never removes a block, only rewrites thinking text), so
// the raw side only needs to track the dropped-prefix length from
// TrimToolRounds and patch thinking text back into otherwise-untouched
// raw block maps.
func purifyRawMessages(raw []interface{}, requestId string) []interface{} {
	rawMsgs := make([]map[string]interface{}, 0, len(raw))
	ctxMsgs := make([]pctx.Message, 0, len(raw))
	for _, m := range raw {
		mm, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		rawMsgs = append(rawMsgs, mm)
		ctxMsgs = append(ctxMsgs, toContextMessage(mm))
	}

	if state := pctx.AnalyzeConversationState(ctxMsgs); state.InterruptedTool {
		log.Printf("⚠️ [%s] interrupted tool loop detected at message %d", requestId, state.LastAssistantIdx)
	}

	trimmed := pctx.TrimToolRounds(ctxMsgs, maxToolRoundsKept)
	dropped := len(ctxMsgs) - len(trimmed)
	if dropped > 0 {
		log.Printf("✂️ [%s] trimmed %d stale tool-round message(s) from history", requestId, dropped)
	}
	rawTrimmed := rawMsgs[dropped:]

	purified := pctx.PurifyHistory(trimmed, pctx.Soft, true)

	out := make([]interface{}, len(purified))
	for i, pm := range purified {
		out[i] = applyPurifiedThinking(rawTrimmed[i], pm)
	}
	return out
}

func toContextMessage(mm map[string]interface{}) pctx.Message {
	role, _ := mm["role"].(string)
	msg := pctx.Message{Role: role}

	switch c := mm["content"].(type) {
	case string:
		msg.Blocks = append(msg.Blocks, pctx.Block{Kind: pctx.BlockText, Text: c})
	case []interface{}:
		for _, block := range c {
			b, ok := block.(map[string]interface{})
			if !ok {
				continue
			}
			switch blockType, _ := b["type"].(string); blockType {
			case "text":
				text, _ := b["text"].(string)
				msg.Blocks = append(msg.Blocks, pctx.Block{Kind: pctx.BlockText, Text: text})
			case "thinking":
				thinking, _ := b["thinking"].(string)
				signature, _ := b["signature"].(string)
				msg.Blocks = append(msg.Blocks, pctx.Block{Kind: pctx.BlockThinking, Thinking: thinking, Signature: signature})
			case "tool_use":
				name, _ := b["name"].(string)
				id, _ := b["id"].(string)
				msg.Blocks = append(msg.Blocks, pctx.Block{Kind: pctx.BlockToolUse, ToolUseID: id, ToolName: name})
			case "tool_result":
				toolUseID, _ := b["tool_use_id"].(string)
				msg.Blocks = append(msg.Blocks, pctx.Block{Kind: pctx.BlockToolResult, ToolUseID: toolUseID})
			default:
				msg.Blocks = append(msg.Blocks, pctx.Block{Kind: pctx.BlockText})
			}
		}
	}
	return msg
}

// applyPurifiedThinking rewrites a raw message's thinking-block text to
// match the purified context.Message, leaving every other field (tool
// arguments, tool results, ids) exactly as the client sent them.
func applyPurifiedThinking(raw map[string]interface{}, pm pctx.Message) map[string]interface{} {
	contentArr, ok := raw["content"].([]interface{})
	if !ok {
		return raw
	}

	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[k] = v
	}

	newContent := make([]interface{}, len(contentArr))
	copy(newContent, contentArr)
	for i, block := range contentArr {
		if i >= len(pm.Blocks) || pm.Blocks[i].Kind != pctx.BlockThinking {
			continue
		}
		b, ok := block.(map[string]interface{})
		if !ok {
			continue
		}
		patched := make(map[string]interface{}, len(b))
		for k, v := range b {
			patched[k] = v
		}
		patched["thinking"] = pm.Blocks[i].Thinking
		newContent[i] = patched
	}
	out["content"] = newContent
	return out
}
