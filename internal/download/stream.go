package download

import (
	"io"
	"time"
)

// readDeadline guards a streamed response body against stalls: if no bytes
// arrive for d the underlying body is closed, surfacing a read error that the
// retry loop treats as a failed attempt.
func readDeadline(body io.ReadCloser, d time.Duration) io.Reader {
	if d <= 0 {
		return body
	}
	g := &stallGuard{r: body, d: d}
	g.timer = time.AfterFunc(d, func() { _ = body.Close() })
	return g
}

type stallGuard struct {
	r     io.ReadCloser
	timer *time.Timer
	d     time.Duration
}

func (g *stallGuard) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	if err != nil {
		g.timer.Stop()
	} else {
		g.timer.Reset(g.d)
	}
	return n, err
}
