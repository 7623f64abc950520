package constants

const (
	AsrTypeParaformer = "paraformer"
)

const (
	LlmTypeOpenai   = "openai"
	LlmTypeDeepSeek = "deepseek"
	LlmTypeOllama   = "ollama"
)

const (
	TtsTypeCosyvoice = "cosyvoice"
	TtsTypeSambert   = "sambert"
	TtsTypeEdge      = "edge"
)

const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// 埋点事件名
const (
	EventUserRegister        = "user_register"
	EventUserLogin           = "user_login"
	EventStartLearning       = "start_learning"
	EventConversationStarted = "conversation_started"
	EventMessageSent         = "message_sent"
	EventWordSaved           = "word_saved"
	EventWordMastered        = "word_mastered"
)

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

const (
	DefaultHSKLevel = 3
	// 语音输入最小字节数，小于等于该值视为没有录到内容
	MinVoiceBytes = 1000
)
