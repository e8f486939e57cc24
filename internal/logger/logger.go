// Package logger builds the process-wide zerolog logger and keeps a
// thread-safe in-memory ring of recent status messages for the UI.
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a timestamped zerolog logger writing to out at the named
// level. Unknown levels fall back to info. Each ring passed in receives a
// copy of every message.
func NewLogger(level string, out io.Writer, rings ...*Ring) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	l := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	for _, r := range rings {
		l = l.Hook(r)
	}
	return l
}

// Message represents a single log message
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Level     string    `json:"level"` // info, warning, error
}

// Ring manages in-memory log messages
type Ring struct {
	mu       sync.RWMutex
	messages []Message
	maxSize  int
}

// NewRing creates a new ring with specified max message count
func NewRing(maxSize int) *Ring {
	return &Ring{
		messages: make([]Message, 0, maxSize),
		maxSize:  maxSize,
	}
}

// Run implements zerolog.Hook. Debug and trace messages are not kept.
func (r *Ring) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	switch {
	case level == zerolog.NoLevel || msg == "":
		return
	case level < zerolog.InfoLevel:
		return
	case level == zerolog.WarnLevel:
		r.Log("warning", msg)
	case level >= zerolog.ErrorLevel:
		r.Log("error", msg)
	default:
		r.Log("info", msg)
	}
}

// Log adds a new message to the ring
func (r *Ring) Log(level, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, Message{
		Timestamp: time.Now(),
		Text:      text,
		Level:     level,
	})

	// Keep only the last maxSize messages
	if len(r.messages) > r.maxSize {
		r.messages = r.messages[len(r.messages)-r.maxSize:]
	}
}

// GetRecent returns the most recent n messages (newest first)
func (r *Ring) GetRecent(n int) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > len(r.messages) {
		n = len(r.messages)
	}

	result := make([]Message, n)
	for i := 0; i < n; i++ {
		result[i] = r.messages[len(r.messages)-1-i]
	}

	return result
}

// GetAll returns all messages (newest first)
func (r *Ring) GetAll() []Message {
	r.mu.RLock()
	n := len(r.messages)
	r.mu.RUnlock()
	return r.GetRecent(n)
}
