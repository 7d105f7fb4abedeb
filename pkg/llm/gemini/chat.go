package gemini

import (
	"bufio"
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/kart-io/okr-assistant/pkg/llm"
	"github.com/kart-io/okr-assistant/pkg/utils/json"
)

type part struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	FunctionCall     *functionCall     `json:"functionCall,omitempty"`
	FunctionResponse *functionResponse `json:"functionResponse,omitempty"`
}

type functionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *schema            `json:"items,omitempty"`
}

type functionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *schema `json:"parameters,omitempty"`
}

type tool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type generationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	ResponseMIMEType string   `json:"responseMimeType,omitempty"`
}

// generateRequest generateContent / streamGenerateContent 请求体。
type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Tools             []tool            `json:"tools,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

// generateResponse 同时用于完整响应和 SSE 中的每个分片。
type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

func convertSchema(s *llm.Schema) *schema {
	if s == nil {
		return nil
	}
	out := &schema{
		Type:        strings.ToUpper(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Items:       convertSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = convertSchema(v)
		}
	}
	return out
}

func (p *Provider) buildRequest(req *llm.ChatRequest) *generateRequest {
	out := &generateRequest{
		Contents: make([]content, 0, len(req.Messages)),
	}

	if req.SystemInstruction != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleUser:
			out.Contents = append(out.Contents, content{Role: "user", Parts: []part{{Text: msg.Content}}})
		case llm.RoleAssistant:
			c := content{Role: "model"}
			if msg.Content != "" {
				c.Parts = append(c.Parts, part{Text: msg.Content})
			}
			for _, fc := range msg.FunctionCalls {
				c.Parts = append(c.Parts, part{FunctionCall: &functionCall{ID: fc.ID, Name: fc.Name, Args: fc.Args}})
			}
			if len(c.Parts) == 0 {
				c.Parts = []part{{Text: ""}}
			}
			out.Contents = append(out.Contents, c)
		case llm.RoleTool:
			if msg.FunctionResult == nil {
				continue
			}
			out.Contents = append(out.Contents, content{Role: "user", Parts: []part{{
				FunctionResponse: &functionResponse{
					ID:       msg.FunctionResult.ID,
					Name:     msg.FunctionResult.Name,
					Response: msg.FunctionResult.Response,
				},
			}}})
		}
	}

	if len(req.Tools) > 0 {
		decls := make([]functionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = functionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  convertSchema(t.Parameters),
			}
		}
		out.Tools = []tool{{FunctionDeclarations: decls}}
	}

	if req.Temperature != nil || req.ResponseMIMEType != "" {
		out.GenerationConfig = &generationConfig{
			Temperature:      req.Temperature,
			ResponseMIMEType: req.ResponseMIMEType,
		}
	}
	return out
}

func (p *Provider) model(req *llm.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.cfg.ChatModel
}

// toChunk 提取文本和函数调用，忽略思考过程分片。
func toChunk(resp *generateResponse) *llm.Chunk {
	chunk := &llm.Chunk{}
	if len(resp.Candidates) == 0 {
		return chunk
	}

	var sb strings.Builder
	for _, pt := range resp.Candidates[0].Content.Parts {
		if pt.Thought {
			continue
		}
		sb.WriteString(pt.Text)
		if pt.FunctionCall != nil {
			chunk.FunctionCalls = append(chunk.FunctionCalls, llm.FunctionCall{
				ID:   pt.FunctionCall.ID,
				Name: pt.FunctionCall.Name,
				Args: pt.FunctionCall.Args,
			})
		}
	}
	chunk.Text = sb.String()
	return chunk
}

func blocked(resp *generateResponse) error {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	return nil
}

// Chat 调用 generateContent。
func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	httpReq, err := p.post(ctx, p.endpoint(p.model(req), "generateContent"), p.buildRequest(req))
	if err != nil {
		return nil, err
	}

	var resp generateResponse
	if err := p.client.DoJSON(httpReq, &resp); err != nil {
		return nil, fmt.Errorf("gemini chat: %w", err)
	}
	if err := blocked(&resp); err != nil {
		return nil, err
	}

	chunk := toChunk(&resp)
	return &llm.ChatResponse{Text: chunk.Text, FunctionCalls: chunk.FunctionCalls}, nil
}

// ChatStream 调用 streamGenerateContent?alt=sse，每个 data 事件产出一个分片。
func (p *Provider) ChatStream(ctx context.Context, req *llm.ChatRequest) iter.Seq2[*llm.Chunk, error] {
	return func(yield func(*llm.Chunk, error) bool) {
		httpReq, err := p.post(ctx, p.endpoint(p.model(req), "streamGenerateContent")+"?alt=sse", p.buildRequest(req))
		if err != nil {
			yield(nil, err)
			return
		}
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := p.stream.Stream(httpReq)
		if err != nil {
			yield(nil, fmt.Errorf("gemini stream: %w", err))
			return
		}
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "" || data == "[DONE]" {
				continue
			}

			var event generateResponse
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				yield(nil, fmt.Errorf("gemini stream: 解析分片失败: %w", err))
				return
			}
			if err := blocked(&event); err != nil {
				yield(nil, err)
				return
			}
			if !yield(toChunk(&event), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			yield(nil, fmt.Errorf("gemini stream: %w", err))
		}
	}
}
