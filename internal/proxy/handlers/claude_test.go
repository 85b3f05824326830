package handlers

import (
	"reflect"
	"testing"
)

func TestToolSchemaCacheSanitizesAndMemoizes(t *testing.T) {
	input := map[string]interface{}{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type":    "object",
		"properties": map[string]interface{}{
			"count": map[string]interface{}{
				"anyOf": []interface{}{
					map[string]interface{}{"type": "integer"},
					map[string]interface{}{"type": "null"},
				},
			},
		},
	}

	first := toolSchemaCache.GetOrClean(input, "count_things")
	second := toolSchemaCache.GetOrClean(input, "count_things")
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical sanitized schema across calls, got %v vs %v", first, second)
	}
	cleaned, ok := first.(map[string]interface{})
	if !ok {
		t.Fatalf("expected a map result, got %T", first)
	}
	if cleaned["$schema"] != nil {
		t.Errorf("expected $schema to be dropped by the whitelist, got %v", cleaned["$schema"])
	}
	stats := toolSchemaCache.Stats()
	if stats.CacheHits < 1 {
		t.Errorf("expected at least one cache hit, got %+v", stats)
	}
}

func TestExtractTextFromGemini(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]interface{}
		expected string
	}{
		{
			name: "extracts text from valid response",
			input: map[string]interface{}{
				"candidates": []interface{}{
					map[string]interface{}{
						"content": map[string]interface{}{
							"parts": []interface{}{
								map[string]interface{}{
									"text": "Hello, world!",
								},
							},
						},
					},
				},
			},
			expected: "Hello, world!",
		},
		{
			name: "returns empty for no candidates",
			input: map[string]interface{}{
				"candidates": []interface{}{},
			},
			expected: "",
		},
		{
			name: "returns empty for no parts",
			input: map[string]interface{}{
				"candidates": []interface{}{
					map[string]interface{}{
						"content": map[string]interface{}{
							"parts": []interface{}{},
						},
					},
				},
			},
			expected: "",
		},
		{
			name: "returns empty for functionCall part",
			input: map[string]interface{}{
				"candidates": []interface{}{
					map[string]interface{}{
						"content": map[string]interface{}{
							"parts": []interface{}{
								map[string]interface{}{
									"functionCall": map[string]interface{}{
										"name": "get_weather",
										"args": map[string]interface{}{},
									},
								},
							},
						},
					},
				},
			},
			expected: "",
		},
		{
			name:     "handles nil input",
			input:    nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractTextFromGemini(tt.input)
			if result != tt.expected {
				t.Errorf("extractTextFromGemini() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestExtractFunctionCallFromGemini(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]interface{}
		hasCall  bool
		callName string
	}{
		{
			name: "extracts functionCall",
			input: map[string]interface{}{
				"candidates": []interface{}{
					map[string]interface{}{
						"content": map[string]interface{}{
							"parts": []interface{}{
								map[string]interface{}{
									"functionCall": map[string]interface{}{
										"name": "get_weather",
										"args": map[string]interface{}{
											"location": "Tokyo",
										},
									},
								},
							},
						},
					},
				},
			},
			hasCall:  true,
			callName: "get_weather",
		},
		{
			name: "returns nil for text-only response",
			input: map[string]interface{}{
				"candidates": []interface{}{
					map[string]interface{}{
						"content": map[string]interface{}{
							"parts": []interface{}{
								map[string]interface{}{
									"text": "Hello",
								},
							},
						},
					},
				},
			},
			hasCall: false,
		},
		{
			name: "returns nil for empty candidates",
			input: map[string]interface{}{
				"candidates": []interface{}{},
			},
			hasCall: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractFunctionCallFromGemini(tt.input)
			if tt.hasCall {
				if result == nil {
					t.Error("expected functionCall, got nil")
				} else if result["name"] != tt.callName {
					t.Errorf("expected name %q, got %q", tt.callName, result["name"])
				}
			} else {
				if result != nil {
					t.Errorf("expected nil, got %v", result)
				}
			}
		})
	}
}
