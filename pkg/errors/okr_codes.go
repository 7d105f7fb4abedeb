package errors

import "google.golang.org/grpc/codes"

// OKR 服务错误码: AA = 30
var (
	// 请求参数错误 (类别 01)
	ErrProgressOutOfRange = Register(New(MakeCode(ServiceOKR, CategoryRequest, 1), 400, codes.InvalidArgument, "Progress must be between 0 and 100", "进度必须在 0 到 100 之间"))
	ErrInvalidID          = Register(New(MakeCode(ServiceOKR, CategoryRequest, 2), 400, codes.InvalidArgument, "Validation failed (uuid is expected)", "ID 必须是 UUID"))
	ErrMalformedToolCall  = Register(New(MakeCode(ServiceOKR, CategoryRequest, 3), 400, codes.InvalidArgument, "Malformed tool call arguments", "工具调用参数无效"))
	ErrEmptyMessage       = Register(New(MakeCode(ServiceOKR, CategoryRequest, 5), 400, codes.InvalidArgument, "Message is required", "消息不能为空"))
	ErrObjectiveDuplicate = Register(New(MakeCode(ServiceOKR, CategoryRequest, 6), 400, codes.AlreadyExists, "Objective already has the same value", "目标内容未发生变化"))

	// 资源错误 (类别 04)
	ErrObjectiveNotFound = Register(New(MakeCode(ServiceOKR, CategoryResource, 1), 404, codes.NotFound, "Objective not found", "目标不存在"))
	ErrKeyResultNotFound = Register(New(MakeCode(ServiceOKR, CategoryResource, 2), 404, codes.NotFound, "KeyResult not found", "关键结果不存在"))

	// 内部错误 (类别 07)
	ErrSuggestionMalformed = Register(New(MakeCode(ServiceOKR, CategoryInternal, 1), 500, codes.Internal, "Model returned a malformed OKR draft", "模型返回的 OKR 草稿格式错误"))
	ErrIndexFailed         = Register(New(MakeCode(ServiceOKR, CategoryInternal, 2), 500, codes.Internal, "Document indexing failed", "文档索引失败"))
	ErrChatFailed          = Register(New(MakeCode(ServiceOKR, CategoryInternal, 3), 500, codes.Internal, "Chat turn failed", "对话失败"))
)

// LLM 服务错误码: AA = 31
var (
	ErrEmptyEmbeddingInput = Register(New(MakeCode(ServiceLLM, CategoryRequest, 1), 400, codes.InvalidArgument, "Embedding input must not be blank", "向量化输入不能为空"))
	ErrUpstreamProvider    = Register(New(MakeCode(ServiceLLM, CategoryNetwork, 1), 502, codes.Unavailable, "Model provider request failed", "模型服务调用失败"))
	ErrUpstreamTimeout     = Register(New(MakeCode(ServiceLLM, CategoryTimeout, 1), 504, codes.DeadlineExceeded, "Model provider timed out", "模型服务超时"))
	ErrProviderNotFound    = Register(New(MakeCode(ServiceLLM, CategoryConfig, 1), 500, codes.FailedPrecondition, "Model provider not registered", "模型供应商未注册"))
)
