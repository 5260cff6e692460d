package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"

	"github.com/dhcgn/mht-extract/stats"
)

type fakeStream struct {
	names []string
}

func (f *fakeStream) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	f.names = append(f.names, name)
}

func TestNew_DisabledOutsideInfo(t *testing.T) {
	assert.False(t, New(10, "debug", true).Enabled())
	assert.False(t, New(10, "info", false).Enabled())
	assert.False(t, New(0, "info", true).Enabled())
}

func TestNew_StartFailureDisablesBar(t *testing.T) {
	orig := startBar
	t.Cleanup(func() { startBar = orig })
	startBar = func(int) (*pterm.ProgressbarPrinter, error) {
		return nil, errors.New("no terminal")
	}

	bar := New(10, "info", true)
	assert.False(t, bar.Enabled())
	bar.Update(stats.Event{Type: stats.EventTypeImage})
	bar.Stop()
}

func TestDisabledBarIsNoop(t *testing.T) {
	bar := New(5, "warn", true)
	bar.Update(stats.Event{Type: stats.EventTypeImage})
	bar.Stop()

	stream := &fakeStream{}
	NewReporter(stream, bar)
	assert.Empty(t, stream.names)
}

func TestSubscriberDrainsEvents(t *testing.T) {
	bar := New(3, "error", true)
	events := make(chan stats.Event, 3)
	events <- stats.Event{Type: stats.EventTypeHTML}
	events <- stats.Event{Type: stats.EventTypeWarning}
	close(events)

	assert.NoError(t, bar.Subscriber(context.Background(), events))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 40))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
}
