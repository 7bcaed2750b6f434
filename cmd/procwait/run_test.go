package main

import (
	"context"
	"testing"
	"time"

	"github.com/guseggert/procwait/internal/test"
	"github.com/guseggert/procwait/waiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// newTestLogger logs to t. Debug messages are dropped, since processes may still log them after a test returns.
func newTestLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)).Sugar()
}

func TestRun(t *testing.T) {
	cases := []struct {
		name      string
		script    string
		cfg       runConfig
		expCode   int
		expErr    error
		expStdout string
		expStderr string
	}{
		{
			name:      "exit code and echo",
			script:    "echo hello; echo oops >&2; exit 3",
			cfg:       runConfig{echo: true},
			expCode:   3,
			expStdout: "hello\n",
			expStderr: "oops\n",
		},
		{
			name:      "echo prefixes",
			script:    "echo hello; echo oops >&2",
			cfg:       runConfig{echo: true, outPrefix: "[out]", errPrefix: "[err]"},
			expStdout: "[out] hello\n",
			expStderr: "[err] oops\n",
		},
		{
			name:      "wait for text",
			script:    "echo starting; echo ready now; sleep 0.1",
			cfg:       runConfig{waitFor: "ready"},
			expStdout: "ready now\n",
		},
		{
			name:      "wait for regexp",
			script:    "echo THE answer 42 >&2",
			cfg:       runConfig{waitForRegexp: `answer [0-9]{2}`},
			expStdout: "THE answer 42\n",
		},
		{
			name:      "kill after match",
			script:    "echo ready; exec sleep 100",
			cfg:       runConfig{waitFor: "ready", killAfter: true},
			expStdout: "ready\n",
		},
		{
			name:    "ended without match",
			script:  "echo nothing to see",
			cfg:     runConfig{waitFor: "ready"},
			expCode: 1,
			expErr:  waiter.ErrEndedWithoutMatch,
		},
		{
			name:    "exit timeout",
			script:  "exec sleep 100",
			cfg:     runConfig{timeout: 50 * time.Millisecond, killOnTimeout: true},
			expCode: 1,
			expErr:  waiter.ErrTimeout,
		},
		{
			name:    "signaled command",
			script:  "kill -KILL $$",
			expCode: 1,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var stdout, stderr test.LockedBuffer
			cfg := c.cfg
			cfg.command = "sh"
			cfg.args = []string{"-c", c.script}
			cfg.stdout = &stdout
			cfg.stderr = &stderr
			cfg.log = newTestLogger(t)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			code, err := run(ctx, cfg)

			assert.Equal(t, c.expCode, code)
			if c.expErr != nil {
				require.ErrorIs(t, err, c.expErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, c.expStdout, stdout.String())
			assert.Equal(t, c.expStderr, stderr.String())
		})
	}
}

func TestRunInvalidPatterns(t *testing.T) {
	log := newTestLogger(t)

	_, err := run(context.Background(), runConfig{command: "true", waitFor: "a", waitForRegexp: "b", log: log})
	assert.ErrorContains(t, err, "only one of")

	_, err = run(context.Background(), runConfig{command: "true", waitForRegexp: "(", log: log})
	assert.ErrorContains(t, err, "compiling --wait-for-regexp")

	code, err := run(context.Background(), runConfig{command: "true", killAfter: true, log: log})
	assert.ErrorContains(t, err, "--kill-after-match requires")
	assert.Equal(t, 1, code)
}

func TestRunInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := run(ctx, runConfig{
		command: "sleep",
		args:    []string{"100"},
		stdout:  &test.LockedBuffer{},
		stderr:  &test.LockedBuffer{},
		log:     newTestLogger(t),
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), killTimeout)
}
