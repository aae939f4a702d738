package infrastructure

import (
	"io"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/yourusername/vgrab-go/internal/domain"
)

// ProgressReader observes bytes flowing from a source to the sink.
// It never alters the stream; it only reports ProgressEvents.
type ProgressReader struct {
	body      io.ReadCloser
	total     int64
	read      int64
	percent   float64
	event     domain.ProgressEvent
	emit      domain.ProgressFunc
	sometimes *rate.Sometimes
	finished  bool
}

// TrackProgress wraps src so every chunk read from it is reported to fn.
// Events are throttled to one per interval; the first chunk and the end of
// the stream are always reported, and interval <= 0 reports every chunk.
// A nil fn leaves src untouched.
func TrackProgress(src *domain.ByteSource, base domain.ProgressEvent, interval time.Duration, fn domain.ProgressFunc) *domain.ByteSource {
	if fn == nil {
		return src
	}

	sometimes := &rate.Sometimes{Interval: interval}
	if interval <= 0 {
		sometimes = &rate.Sometimes{Every: 1}
	}

	pr := &ProgressReader{
		body:      src.Body,
		total:     src.Total,
		event:     base,
		emit:      fn,
		sometimes: sometimes,
	}
	return &domain.ByteSource{Body: pr, Total: src.Total}
}

// Read implements io.Reader
func (p *ProgressReader) Read(buf []byte) (int, error) {
	n, err := p.body.Read(buf)
	if n > 0 {
		p.read += int64(n)
		p.updatePercent()
		p.sometimes.Do(func() { p.report(false) })
	}
	if err == io.EOF && !p.finished {
		p.finished = true
		p.report(true)
	}
	return n, err
}

// Close implements io.Closer
func (p *ProgressReader) Close() error {
	return p.body.Close()
}

func (p *ProgressReader) updatePercent() {
	if p.total <= 0 {
		return
	}
	pct := math.Round(float64(p.read)/float64(p.total)*100*100) / 100
	if pct > 100 {
		pct = 100
	}
	if pct > p.percent {
		p.percent = pct
	}
}

func (p *ProgressReader) report(done bool) {
	ev := p.event
	ev.Downloaded = p.read
	ev.Total = p.total
	ev.Known = p.total > 0
	ev.Percent = p.percent
	ev.Done = done
	p.emit(ev)
}
