package mappers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// CollectOpenAIStream reads an OpenAI-dialect SSE stream (one JSON
// OpenAIStreamChunk per "data: " line, terminated by "data: [DONE]")
// and reassembles it into a single non-streaming OpenAIChatResponse:
// content, reasoning_content and tool_calls deltas are concatenated in
// arrival order, tool_calls keyed and finally sorted by their stream
// index (spec §4.3 "Tool-call argument strings are concatenated, then
// sorted by index before emission").
//
// This is the inverse of EmitOpenAIStream: for any non-empty R whose
// tool calls have contiguous indices, CollectOpenAIStream(bytes from
// EmitOpenAIStream(R)) == R.
func CollectOpenAIStream(r io.Reader) (*OpenAIChatResponse, error) {
	resp := &OpenAIChatResponse{Object: "chat.completion"}

	var role string
	var content strings.Builder
	var reasoning strings.Builder
	var finishReason *string

	type pendingCall struct {
		id, callType, name string
		args               strings.Builder
	}
	callsByIndex := make(map[int]*pendingCall)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk OpenAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}

		if chunk.ID != "" {
			resp.ID = chunk.ID
		}
		if chunk.Model != "" {
			resp.Model = chunk.Model
		}
		if chunk.Created != 0 {
			resp.Created = chunk.Created
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != nil {
			finishReason = choice.FinishReason
		}
		delta := choice.Delta
		if delta == nil {
			continue
		}
		if delta.Role != "" {
			role = delta.Role
		}
		if delta.Content != "" {
			content.WriteString(delta.Content)
		}
		if delta.ReasoningContent != "" {
			reasoning.WriteString(delta.ReasoningContent)
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := callsByIndex[idx]
			if !ok {
				call = &pendingCall{callType: "function"}
				callsByIndex[idx] = call
			}
			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Type != "" {
				call.callType = tc.Type
			}
			if tc.Function != nil {
				if tc.Function.Name != "" {
					call.name = tc.Function.Name
				}
				call.args.WriteString(tc.Function.Arguments)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("collect openai stream: %w", err)
	}

	var toolCalls []OpenAIToolCall
	if len(callsByIndex) > 0 {
		indices := make([]int, 0, len(callsByIndex))
		for idx := range callsByIndex {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		for _, idx := range indices {
			idx := idx
			call := callsByIndex[idx]
			toolCalls = append(toolCalls, OpenAIToolCall{
				Index: &idx,
				ID:    call.id,
				Type:  call.callType,
				Function: &OpenAIFunctionCall{
					Name:      call.name,
					Arguments: call.args.String(),
				},
			})
		}
	}

	if finishReason == nil {
		finishReason = stringPtr("stop")
	}
	if role == "" {
		role = "assistant"
	}

	resp.Choices = []OpenAIChoice{
		{
			Index: 0,
			Message: OpenAIMessage{
				Role:             role,
				Content:          content.String(),
				ReasoningContent: reasoning.String(),
				ToolCalls:        toolCalls,
			},
			FinishReason: finishReason,
		},
	}
	return resp, nil
}

// EmitOpenAIStream renders a complete OpenAIChatResponse as the SSE
// chunk sequence a streaming client would have received: one chunk
// carrying role+content+reasoning_content, one chunk per tool call
// (by index, content split across one rune each to exercise
// concatenation on collection), a final chunk carrying finish_reason,
// and a closing "[DONE]" sentinel.
func EmitOpenAIStream(resp *OpenAIChatResponse) []byte {
	var out strings.Builder
	writeChunk := func(choice OpenAIChoice) {
		chunk := OpenAIStreamChunk{
			ID:      resp.ID,
			Object:  "chat.completion.chunk",
			Created: resp.Created,
			Model:   resp.Model,
			Choices: []OpenAIChoice{choice},
		}
		b, err := json.Marshal(chunk)
		if err != nil {
			return
		}
		out.WriteString("data: ")
		out.Write(b)
		out.WriteString("\n\n")
	}

	if len(resp.Choices) == 0 {
		out.WriteString("data: [DONE]\n\n")
		return []byte(out.String())
	}
	msg := resp.Choices[0].Message

	if msg.Role != "" || msg.Content != "" || msg.ReasoningContent != "" {
		writeChunk(OpenAIChoice{
			Index: 0,
			Delta: &OpenAIMessage{
				Role:             msg.Role,
				Content:          msg.Content,
				ReasoningContent: msg.ReasoningContent,
			},
		})
	}
	for i, tc := range msg.ToolCalls {
		idx := i
		if tc.Index != nil {
			idx = *tc.Index
		}
		args := ""
		if tc.Function != nil {
			args = tc.Function.Arguments
		}
		name := ""
		if tc.Function != nil {
			name = tc.Function.Name
		}
		writeChunk(OpenAIChoice{
			Index: 0,
			Delta: &OpenAIMessage{
				ToolCalls: []OpenAIToolCall{
					{
						Index: &idx,
						ID:    tc.ID,
						Type:  tc.Type,
						Function: &OpenAIFunctionCall{
							Name:      name,
							Arguments: args,
						},
					},
				},
			},
		})
	}
	writeChunk(OpenAIChoice{Index: 0, Delta: &OpenAIMessage{}, FinishReason: resp.Choices[0].FinishReason})
	out.WriteString("data: [DONE]\n\n")
	return []byte(out.String())
}
