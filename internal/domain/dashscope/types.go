package dashscope

import "encoding/json"

// TaskRequest run-task请求参数
type TaskRequest struct {
	// duplex: 客户端持续发送输入; out: 输入随run-task一次给出
	Streaming  string
	TaskGroup  string
	Task       string
	Function   string
	Model      string
	Parameters map[string]interface{}
	Input      map[string]interface{}
}

type header struct {
	Action    string `json:"action,omitempty"`
	TaskID    string `json:"task_id"`
	Streaming string `json:"streaming,omitempty"`
}

type runTaskPayload struct {
	TaskGroup  string                 `json:"task_group"`
	Task       string                 `json:"task"`
	Function   string                 `json:"function"`
	Model      string                 `json:"model"`
	Parameters map[string]interface{} `json:"parameters"`
	Input      map[string]interface{} `json:"input"`
}

type inputPayload struct {
	Input map[string]interface{} `json:"input"`
}

type command struct {
	Header  header      `json:"header"`
	Payload interface{} `json:"payload"`
}

// 服务端事件名
const (
	EventTaskStarted     = "task-started"
	EventResultGenerated = "result-generated"
	EventTaskFinished    = "task-finished"
	EventTaskFailed      = "task-failed"
)

// Event 服务端下发的JSON事件
type Event struct {
	Header struct {
		TaskID       string                 `json:"task_id"`
		Event        string                 `json:"event"`
		ErrorCode    string                 `json:"error_code,omitempty"`
		ErrorMessage string                 `json:"error_message,omitempty"`
		Attributes   map[string]interface{} `json:"attributes,omitempty"`
	} `json:"header"`
	Payload struct {
		Output Output          `json:"output"`
		Usage  json.RawMessage `json:"usage,omitempty"`
	} `json:"payload"`
}

// Output 识别结果
type Output struct {
	Sentence *Sentence `json:"sentence,omitempty"`
}

type Sentence struct {
	BeginTime   int64  `json:"begin_time"`
	EndTime     *int64 `json:"end_time"`
	Text        string `json:"text"`
	SentenceEnd bool   `json:"sentence_end"`
}

// Result 一次任务的全部输出
type Result struct {
	TaskID string
	// 二进制帧拼接的音频
	Audio  []byte
	Events []*Event
}

// Sentences 只保留已结束的句子
func (r *Result) Sentences() []*Sentence {
	var out []*Sentence
	for _, ev := range r.Events {
		if s := ev.Payload.Output.Sentence; s != nil && s.SentenceEnd {
			out = append(out, s)
		}
	}
	return out
}
