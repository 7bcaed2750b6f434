package waiter

import (
	"io"
	"sync"

	"github.com/guseggert/procwait/process"
)

// Echo mirrors the process's stdout and stderr to the configured destinations, one line at a time.
// Each line is written as "prefix line\n", or "line\n" when there is no prefix.
// Echo returns immediately and keeps echoing until the streams end. Streams that aren't piped are skipped.
func Echo(p *process.Process, opts ...Option) {
	c := newConfig(opts)
	log := c.logger("echo", p)

	// stdout and stderr are delivered on different goroutines and may share a destination
	var m sync.Mutex
	echo := func(name string, s *process.LineStream, w io.Writer, prefix string) {
		if s == nil {
			log.Debugf("%s is not piped, skipping", name)
			return
		}
		s.OnLine(func(line string) {
			if prefix != "" {
				line = prefix + " " + line
			}
			m.Lock()
			defer m.Unlock()
			_, err := io.WriteString(w, line+"\n")
			if err != nil {
				log.Debugf("%s echo got write error: %s", name, err)
			}
		})
	}

	if c.stdout {
		echo("stdout", p.Stdout(), c.out, c.outPrefix)
	}
	if c.stderr {
		echo("stderr", p.Stderr(), c.err, c.errPrefix)
	}
}
