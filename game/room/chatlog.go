package room

// ChatLog is a fixed-capacity ring of the most recent chat messages.
// It is not safe for concurrent use; Room guards it.
type ChatLog struct {
	buf   []ChatMessage
	start int
	size  int
}

// NewChatLog creates a log that keeps at most capacity messages
func NewChatLog(capacity int) *ChatLog {
	if capacity < 0 {
		capacity = 0
	}
	return &ChatLog{buf: make([]ChatMessage, capacity)}
}

// Append records a message, evicting the oldest when full
func (l *ChatLog) Append(msg ChatMessage) {
	if len(l.buf) == 0 {
		return
	}
	if l.size < len(l.buf) {
		l.buf[(l.start+l.size)%len(l.buf)] = msg
		l.size++
		return
	}
	l.buf[l.start] = msg
	l.start = (l.start + 1) % len(l.buf)
}

// Messages returns a copy of the buffered messages, oldest first
func (l *ChatLog) Messages() []ChatMessage {
	out := make([]ChatMessage, 0, l.size)
	for i := 0; i < l.size; i++ {
		out = append(out, l.buf[(l.start+i)%len(l.buf)])
	}
	return out
}

// Len returns the number of buffered messages
func (l *ChatLog) Len() int {
	return l.size
}
