package process

import (
	"bytes"
	"sync"

	"go.uber.org/atomic"
)

// historyLimit bounds the bytes of output a stream retains for handlers registered later.
const historyLimit = 64 * 1024

// LineStream splits the bytes written to it into newline-delimited lines and fans each line out to every registered handler.
// Handlers are invoked on the goroutine that writes to the stream, so a slow handler slows down the process output it is
// attached to.
//
// The stream retains its most recent output, up to historyLimit bytes of lines. A new handler first receives the retained
// lines and then every line emitted after it, so handlers see the same lines in the same order no matter when they were
// registered, unless the history was trimmed in between.
type LineStream struct {
	// wm serializes delivery, so that handlers see lines in emission order
	wm  sync.Mutex
	buf []byte

	// m guards everything below, handlers may modify the handler list from inside a callback
	m           sync.Mutex
	handlers    []*lineHandler
	history     []string
	historySize int
	closed      bool

	done chan struct{}
}

type lineHandler struct {
	// m is held while the handler replays the history, so live lines queue up behind it
	m       sync.Mutex
	fn      func(line string)
	removed atomic.Bool
}

func (h *lineHandler) call(line string) {
	h.m.Lock()
	defer h.m.Unlock()
	if h.removed.Load() {
		return
	}
	h.fn(line)
}

func newLineStream() *LineStream {
	return &LineStream{done: make(chan struct{})}
}

// OnLine registers fn to receive the retained lines of the stream, followed by every line emitted after this call.
// The returned func removes the handler, and is safe to call more than once and from inside fn.
func (s *LineStream) OnLine(fn func(line string)) (remove func()) {
	h := &lineHandler{fn: fn}
	h.m.Lock()
	defer h.m.Unlock()

	// a line is either in the snapshot or delivered to h, never both
	s.m.Lock()
	history := make([]string, len(s.history))
	copy(history, s.history)
	s.handlers = append(s.handlers, h)
	s.m.Unlock()

	for _, line := range history {
		if h.removed.Load() {
			break
		}
		fn(line)
	}
	return func() { s.remove(h) }
}

func (s *LineStream) remove(h *lineHandler) {
	h.removed.Store(true)
	s.m.Lock()
	defer s.m.Unlock()
	for i := 0; i < len(s.handlers); i++ {
		if s.handlers[i] == h {
			s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
			return
		}
	}
}

// Done is closed once the stream has ended and its last line was delivered.
func (s *LineStream) Done() <-chan struct{} {
	return s.done
}

func (s *LineStream) Write(p []byte) (int, error) {
	s.wm.Lock()
	defer s.wm.Unlock()

	s.buf = append(s.buf, p...)
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		line := s.buf[:i]
		s.buf = s.buf[i+1:]
		s.deliver(string(bytes.TrimSuffix(line, []byte{'\r'})))
	}
	// don't hold on to the backing array of a large burst of output
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return len(p), nil
}

// Close flushes a trailing unterminated line and marks the stream as done.
func (s *LineStream) Close() error {
	s.wm.Lock()
	defer s.wm.Unlock()

	s.m.Lock()
	closed := s.closed
	s.closed = true
	s.m.Unlock()
	if closed {
		return nil
	}

	if len(s.buf) > 0 {
		s.deliver(string(bytes.TrimSuffix(s.buf, []byte{'\r'})))
		s.buf = nil
	}
	close(s.done)
	return nil
}

// deliver must be called with wm held.
func (s *LineStream) deliver(line string) {
	s.m.Lock()
	s.retain(line)
	handlers := make([]*lineHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.m.Unlock()

	for _, h := range handlers {
		h.call(line)
	}
}

// retain appends line to the history, dropping the oldest lines beyond historyLimit.
func (s *LineStream) retain(line string) {
	s.history = append(s.history, line)
	s.historySize += len(line)
	for s.historySize > historyLimit && len(s.history) > 1 {
		s.historySize -= len(s.history[0])
		s.history = s.history[1:]
	}
}
