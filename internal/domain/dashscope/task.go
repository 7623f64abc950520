package dashscope

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	log "cn-chinese-link/logger"
)

// Task 一个进行中的run-task
type Task struct {
	id        string
	streaming string
	conn      *websocket.Conn

	writeMu sync.Mutex
	frames  chan frame
	closeCh chan struct{}
	once    sync.Once
}

type frame struct {
	msgType int
	data    []byte
	err     error
}

// Start 建立连接并发送run-task，收到task-started后返回
func (c *Client) Start(ctx context.Context, req *TaskRequest) (*Task, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if req.Streaming == "" {
		req.Streaming = StreamingDuplex
	}
	if req.TaskGroup == "" {
		req.TaskGroup = "audio"
	}
	if req.Parameters == nil {
		req.Parameters = map[string]interface{}{}
	}
	if req.Input == nil {
		req.Input = map[string]interface{}{}
	}

	headers := http.Header{}
	headers.Set("Authorization", "bearer "+c.apiKey)
	if c.workspaceID != "" {
		headers.Set("X-DashScope-WorkSpace", c.workspaceID)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, &Error{
				Code:       "ConnectionFailed",
				Message:    fmt.Sprintf("failed to connect: %v", err),
				HTTPStatus: resp.StatusCode,
			}
		}
		return nil, fmt.Errorf("dashscope: failed to connect: %w", err)
	}

	t := &Task{
		id:        uuid.New().String(),
		streaming: req.Streaming,
		conn:      conn,
		frames:    make(chan frame, 64),
		closeCh:   make(chan struct{}),
	}
	go t.readLoop()

	run := command{
		Header: header{Action: "run-task", TaskID: t.id, Streaming: req.Streaming},
		Payload: runTaskPayload{
			TaskGroup:  req.TaskGroup,
			Task:       req.Task,
			Function:   req.Function,
			Model:      req.Model,
			Parameters: req.Parameters,
			Input:      req.Input,
		},
	}
	if err := t.writeJSON(run); err != nil {
		t.Close()
		return nil, fmt.Errorf("dashscope: send run-task: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, c.startTimeout)
	defer cancel()
	for {
		select {
		case <-startCtx.Done():
			t.Close()
			return nil, fmt.Errorf("dashscope: wait task-started: %w", startCtx.Err())
		case f, ok := <-t.frames:
			if !ok {
				t.Close()
				return nil, fmt.Errorf("dashscope: connection closed before task-started")
			}
			if f.err != nil {
				t.Close()
				return nil, f.err
			}
			if f.msgType != websocket.TextMessage {
				continue
			}
			ev, err := parseEvent(f.data)
			if err != nil {
				t.Close()
				return nil, err
			}
			switch ev.Header.Event {
			case EventTaskStarted:
				log.Debugf("dashscope task started: %s model=%s", t.id, req.Model)
				return t, nil
			case EventTaskFailed:
				t.Close()
				return nil, eventError(ev)
			}
		}
	}
}

func (t *Task) ID() string {
	return t.id
}

// SendText continue-task，追加待合成文本
func (t *Task) SendText(text string) error {
	return t.writeJSON(command{
		Header:  header{Action: "continue-task", TaskID: t.id, Streaming: t.streaming},
		Payload: inputPayload{Input: map[string]interface{}{"text": text}},
	})
}

// SendAudio 以二进制帧发送音频
func (t *Task) SendAudio(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Finish finish-task，通知服务端输入结束
func (t *Task) Finish() error {
	return t.writeJSON(command{
		Header:  header{Action: "finish-task", TaskID: t.id, Streaming: t.streaming},
		Payload: inputPayload{Input: map[string]interface{}{}},
	})
}

// Wait 收集音频和事件直到task-finished
func (t *Task) Wait(ctx context.Context) (*Result, error) {
	res := &Result{TaskID: t.id}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case f, ok := <-t.frames:
			if !ok {
				return nil, fmt.Errorf("dashscope: connection closed before task-finished")
			}
			if f.err != nil {
				return nil, f.err
			}
			if f.msgType == websocket.BinaryMessage {
				res.Audio = append(res.Audio, f.data...)
				continue
			}
			ev, err := parseEvent(f.data)
			if err != nil {
				return nil, err
			}
			switch ev.Header.Event {
			case EventResultGenerated:
				res.Events = append(res.Events, ev)
			case EventTaskFinished:
				return res, nil
			case EventTaskFailed:
				return nil, eventError(ev)
			}
		}
	}
}

func (t *Task) Close() error {
	var err error
	t.once.Do(func() {
		close(t.closeCh)
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

func (t *Task) writeJSON(v interface{}) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(v)
}

func (t *Task) readLoop() {
	defer close(t.frames)
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.closeCh:
			case t.frames <- frame{err: fmt.Errorf("dashscope: read: %w", err)}:
			}
			return
		}
		select {
		case <-t.closeCh:
			return
		case t.frames <- frame{msgType: msgType, data: data}:
		}
	}
}

func parseEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("dashscope: parse event: %w", err)
	}
	return &ev, nil
}

func eventError(ev *Event) error {
	return &Error{
		Code:    ev.Header.ErrorCode,
		Message: ev.Header.ErrorMessage,
		TaskID:  ev.Header.TaskID,
	}
}

// Run 一次性执行：out模式直接等待结果；duplex模式先调用feed发送输入再finish
func (c *Client) Run(ctx context.Context, req *TaskRequest, feed func(*Task) error) (*Result, error) {
	t, err := c.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	if req.Streaming == StreamingDuplex {
		if feed != nil {
			if err := feed(t); err != nil {
				return nil, fmt.Errorf("dashscope: feed input: %w", err)
			}
		}
		if err := t.Finish(); err != nil {
			return nil, fmt.Errorf("dashscope: send finish-task: %w", err)
		}
	}
	return t.Wait(ctx)
}
