package llm

import "strings"

// Role 定义消息角色。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleTool 携带函数调用结果。
	RoleTool Role = "tool"
)

// Schema 描述函数参数的 JSON Schema 子集。
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

// Tool 声明一个可供模型调用的函数。
type Tool struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// FunctionCall 模型请求的函数调用。
type FunctionCall struct {
	// ID 部分供应商（OpenAI）要求回传结果时携带。
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// StringArg 读取字符串类型参数，缺失或为空白时 ok 为 false。
func (c FunctionCall) StringArg(key string) (string, bool) {
	v, ok := c.Args[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// FunctionResult 函数执行结果，回传给模型。
type FunctionResult struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Message 表示对话中的一条消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// FunctionCalls 仅出现在 assistant 消息中。
	FunctionCalls []FunctionCall `json:"function_calls,omitempty"`
	// FunctionResult 仅出现在 tool 消息中。
	FunctionResult *FunctionResult `json:"function_result,omitempty"`
}

// ChatRequest 一次无状态的对话请求。
type ChatRequest struct {
	Model             string
	SystemInstruction string
	Messages          []Message
	Tools             []Tool
	// Temperature 为 nil 时使用供应商默认值。
	Temperature *float64
	// ResponseMIMEType 例如 "application/json"。
	ResponseMIMEType string
}

// ChatResponse 完整响应。
type ChatResponse struct {
	Text          string         `json:"text"`
	FunctionCalls []FunctionCall `json:"function_calls,omitempty"`
}

// Chunk 流式响应分片，可能只包含文本、只包含函数调用或两者皆有。
type Chunk struct {
	Text          string         `json:"text,omitempty"`
	FunctionCalls []FunctionCall `json:"function_calls,omitempty"`
}

// Float64 返回 v 的指针。
func Float64(v float64) *float64 {
	return &v
}
