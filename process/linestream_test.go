package process

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineStreamSplitting(t *testing.T) {
	cases := []struct {
		name     string
		writes   []string
		expLines []string
	}{
		{
			name:     "single line",
			writes:   []string{"answer 42\n"},
			expLines: []string{"answer 42"},
		},
		{
			name:     "line split across writes",
			writes:   []string{"ans", "wer ", "42\nnext\n"},
			expLines: []string{"answer 42", "next"},
		},
		{
			name:     "trailing partial line is flushed on close",
			writes:   []string{"one\ntwo"},
			expLines: []string{"one", "two"},
		},
		{
			name:     "carriage returns are stripped",
			writes:   []string{"one\r\ntwo\r\n"},
			expLines: []string{"one", "two"},
		},
		{
			name:     "empty lines are kept",
			writes:   []string{"\n\nx\n"},
			expLines: []string{"", "", "x"},
		},
		{
			name: "no output",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newLineStream()
			var lines []string
			s.OnLine(func(line string) { lines = append(lines, line) })

			for _, w := range c.writes {
				n, err := s.Write([]byte(w))
				require.NoError(t, err)
				assert.Equal(t, len(w), n)
			}
			require.NoError(t, s.Close())

			assert.Equal(t, c.expLines, lines)
			select {
			case <-s.Done():
			default:
				t.Fatal("expected stream to be done")
			}
		})
	}
}

func TestLineStreamFanOut(t *testing.T) {
	s := newLineStream()

	var first, second []string
	s.OnLine(func(line string) { first = append(first, line) })
	_, err := s.Write([]byte("a\n"))
	require.NoError(t, err)

	// a late handler catches up on what it missed before receiving new lines
	s.OnLine(func(line string) { second = append(second, line) })
	_, err = s.Write([]byte("b\nc\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, first)
	assert.Equal(t, []string{"a", "b", "c"}, second)
}

func TestLineStreamRemoveFromHandler(t *testing.T) {
	s := newLineStream()

	var got []string
	var remove func()
	remove = s.OnLine(func(line string) {
		got = append(got, line)
		remove()
	})
	var all []string
	s.OnLine(func(line string) { all = append(all, line) })

	_, err := s.Write([]byte("a\nb\n"))
	require.NoError(t, err)
	remove()

	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, []string{"a", "b"}, all)
}

func TestLineStreamCloseTwice(t *testing.T) {
	s := newLineStream()
	var lines []string
	s.OnLine(func(line string) { lines = append(lines, line) })

	_, err := s.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, []string{"x"}, lines)
}

func TestLineStreamHistory(t *testing.T) {
	s := newLineStream()
	_, err := s.Write([]byte("early 1\nearly 2\n"))
	require.NoError(t, err)

	var first, second []string
	s.OnLine(func(line string) { first = append(first, line) })
	_, err = s.Write([]byte("middle\n"))
	require.NoError(t, err)
	s.OnLine(func(line string) { second = append(second, line) })

	_, err = s.Write([]byte("late\n"))
	require.NoError(t, err)

	exp := []string{"early 1", "early 2", "middle", "late"}
	assert.Equal(t, exp, first)
	assert.Equal(t, exp, second)
}

func TestLineStreamHistoryAfterClose(t *testing.T) {
	s := newLineStream()
	_, err := s.Write([]byte("answer 42"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	for i := 0; i < 2; i++ {
		var lines []string
		s.OnLine(func(line string) { lines = append(lines, line) })
		assert.Equal(t, []string{"answer 42"}, lines)
	}
}

func TestLineStreamRemoveDuringReplay(t *testing.T) {
	s := newLineStream()
	_, err := s.Write([]byte("a\nb\n"))
	require.NoError(t, err)

	var got []string
	var h *lineHandler
	s.OnLine(func(line string) {
		got = append(got, line)
		if h == nil {
			s.m.Lock()
			h = s.handlers[0]
			s.m.Unlock()
		}
		s.remove(h)
	})

	_, err = s.Write([]byte("c\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
}

func TestLineStreamConcurrentLateHandler(t *testing.T) {
	s := newLineStream()
	const n = 1000

	var first, second []string
	s.OnLine(func(line string) { first = append(first, line) })

	written := make(chan struct{})
	go func() {
		defer close(written)
		for i := 0; i < n; i++ {
			_, _ = s.Write([]byte(strconv.Itoa(i) + "\n"))
		}
		_ = s.Close()
	}()
	s.OnLine(func(line string) { second = append(second, line) })
	<-written
	<-s.Done()

	// registering mid-stream neither drops nor duplicates lines
	require.Len(t, first, n)
	assert.Equal(t, first, second)
}

func TestLineStreamHistoryLimit(t *testing.T) {
	s := newLineStream()
	line := strings.Repeat("x", 1024)
	for i := 0; i < 2*historyLimit/len(line); i++ {
		_, err := s.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}
	_, err := s.Write([]byte("newest\n"))
	require.NoError(t, err)

	var lines []string
	s.OnLine(func(line string) { lines = append(lines, line) })

	require.NotEmpty(t, lines)
	assert.LessOrEqual(t, len(lines), historyLimit/len(line)+1)
	assert.Equal(t, "newest", lines[len(lines)-1])
}
