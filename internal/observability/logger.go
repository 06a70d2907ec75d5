package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeSessionStarted EventType = "session_started"
	EventTypeSessionState   EventType = "session_state"
	EventTypeTaskCompleted  EventType = "task_completed"
	EventTypeNotifyFailed   EventType = "notify_failed"
	EventTypeReward         EventType = "reward"
	EventTypeClassify       EventType = "classify"
	EventTypeToolCall       EventType = "tool_call"
	EventTypeHeartbeat      EventType = "heartbeat"
	EventTypeLLM            EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout, filepath.Join("logs", "llm.jsonl"))
}

// NewLoggerTo writes events to out. An empty llmLogPath disables the LLM transcript file.
func NewLoggerTo(out io.Writer, llmLogPath string) *Logger {
	return &Logger{
		out:        out,
		llmLogPath: llmLogPath,
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return NewLoggerTo(io.Discard, "")
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf("{\"error\": \"failed to marshal event: %v\"}", err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogSessionStarted(ownerID, sessionID, mode string, zones []string, totalTasks int) {
	l.Log(Event{
		Type:      EventTypeSessionStarted,
		ChatID:    ownerID,
		SessionID: sessionID,
		Data: map[string]any{
			"mode":        mode,
			"zones":       zones,
			"total_tasks": totalTasks,
		},
	})
}

func (l *Logger) LogSessionState(ownerID, sessionID, status string) {
	l.Log(Event{
		Type:      EventTypeSessionState,
		ChatID:    ownerID,
		SessionID: sessionID,
		Data:      map[string]string{"status": status},
	})
}

func (l *Logger) LogTaskCompleted(ownerID, sessionID, taskID string, done, total int) {
	countTaskCompleted()
	l.Log(Event{
		Type:      EventTypeTaskCompleted,
		ChatID:    ownerID,
		SessionID: sessionID,
		Data: map[string]any{
			"task":  taskID,
			"done":  done,
			"total": total,
		},
	})
}

func (l *Logger) LogNotifyFailed(ownerID, taskID string, err error) {
	l.Log(Event{
		Type:   EventTypeNotifyFailed,
		ChatID: ownerID,
		Data: map[string]string{
			"task":  taskID,
			"error": err.Error(),
		},
	})
}

func (l *Logger) LogReward(ownerID, taskID string, points int) {
	l.Log(Event{
		Type:   EventTypeReward,
		ChatID: ownerID,
		Data: map[string]any{
			"task":   taskID,
			"points": points,
		},
	})
}

func (l *Logger) LogClassify(chatID, expect, kind string) {
	l.Log(Event{
		Type:   EventTypeClassify,
		ChatID: chatID,
		Data: map[string]string{
			"expect": expect,
			"kind":   kind,
		},
	})
}

func (l *Logger) LogToolCall(chatID, tool, args string) {
	l.Log(Event{
		Type:   EventTypeToolCall,
		ChatID: chatID,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(chatID string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:   EventTypeLLM,
		ChatID: chatID,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}
