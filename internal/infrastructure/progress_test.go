package infrastructure

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/vgrab-go/internal/domain"
)

func byteSource(data []byte, total int64) *domain.ByteSource {
	return &domain.ByteSource{
		Body:  io.NopCloser(iotest.OneByteReader(bytes.NewReader(data))),
		Total: total,
	}
}

func TestTrackProgress_MonotoneAndBounded(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 333)
	var events []domain.ProgressEvent

	src := TrackProgress(byteSource(data, int64(len(data))),
		domain.ProgressEvent{RunID: "run", Ordinal: 4, Title: "Ep 4"},
		0, // no throttling: every chunk reports
		func(ev domain.ProgressEvent) { events = append(events, ev) })

	n, err := io.Copy(io.Discard, src.Body)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	require.NotEmpty(t, events)
	last := 0.0
	for _, ev := range events {
		assert.True(t, ev.Known)
		assert.GreaterOrEqual(t, ev.Percent, last)
		assert.LessOrEqual(t, ev.Percent, 100.0)
		assert.Equal(t, 4, ev.Ordinal)
		last = ev.Percent
	}

	final := events[len(events)-1]
	assert.True(t, final.Done)
	assert.Equal(t, 100.0, final.Percent)
	assert.Equal(t, int64(len(data)), final.Downloaded)
}

func TestTrackProgress_ClampsOverrun(t *testing.T) {
	var events []domain.ProgressEvent
	// origin sends more than it declared
	src := TrackProgress(byteSource([]byte("0123456789"), 5), domain.ProgressEvent{}, 0,
		func(ev domain.ProgressEvent) { events = append(events, ev) })

	_, err := io.Copy(io.Discard, src.Body)
	require.NoError(t, err)

	for _, ev := range events {
		assert.LessOrEqual(t, ev.Percent, 100.0)
	}
}

func TestTrackProgress_UnknownTotal(t *testing.T) {
	var events []domain.ProgressEvent
	src := TrackProgress(byteSource([]byte("abcdef"), -1), domain.ProgressEvent{}, 0,
		func(ev domain.ProgressEvent) { events = append(events, ev) })

	_, err := io.Copy(io.Discard, src.Body)
	require.NoError(t, err)

	require.NotEmpty(t, events)
	for _, ev := range events {
		assert.False(t, ev.Known)
		assert.Zero(t, ev.Percent)
	}
	assert.Equal(t, int64(6), events[len(events)-1].Downloaded)
}

func TestTrackProgress_Throttled(t *testing.T) {
	var events []domain.ProgressEvent
	src := TrackProgress(byteSource(bytes.Repeat([]byte("y"), 50), 50), domain.ProgressEvent{}, time.Hour,
		func(ev domain.ProgressEvent) { events = append(events, ev) })

	_, err := io.Copy(io.Discard, src.Body)
	require.NoError(t, err)

	// first chunk and end of stream only
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Downloaded)
	assert.True(t, events[1].Done)
}

func TestTrackProgress_NilObserver(t *testing.T) {
	src := byteSource([]byte("abc"), 3)
	assert.Same(t, src, TrackProgress(src, domain.ProgressEvent{}, time.Second, nil))
}
