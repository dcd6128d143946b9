package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanlogd/internal/device"
	"scanlogd/internal/transaction"
)

var runeCodes = map[rune]int{
	'1': int(evdev.KEY_1), '2': int(evdev.KEY_2), '3': int(evdev.KEY_3),
	'4': int(evdev.KEY_4), '5': int(evdev.KEY_5), '6': int(evdev.KEY_6),
	'7': int(evdev.KEY_7), '8': int(evdev.KEY_8), '9': int(evdev.KEY_9),
	'0': int(evdev.KEY_0), 'a': int(evdev.KEY_A), 'b': int(evdev.KEY_B),
	'c': int(evdev.KEY_C), ' ': int(evdev.KEY_SPACE), '\n': int(evdev.KEY_ENTER),
}

// typed returns the events a keyboard-emulating scanner produces for s.
func typed(t *testing.T, s string) []device.Event {
	t.Helper()
	var evs []device.Event
	for _, r := range s {
		code, ok := runeCodes[r]
		require.True(t, ok, "no key for %q", r)
		evs = append(evs,
			device.KeyPress(code),
			device.Event{Type: uint16(evdev.EV_SYN)},
			device.KeyRelease(code),
			device.Event{Type: uint16(evdev.EV_SYN)},
		)
	}
	return evs
}

type fakeSource struct {
	events []device.Event
	end    error
}

func (f *fakeSource) ReadEvent() (device.Event, error) {
	if len(f.events) == 0 {
		return device.Event{}, f.end
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

func (f *fakeSource) Close() error { return nil }

type recorder struct {
	recs []transaction.Record
}

func (r *recorder) Submit(rec transaction.Record) error {
	r.recs = append(r.recs, rec)
	return nil
}

type outcome struct {
	payload string
	out     transaction.Outcome
}

type harness struct {
	policy   *transaction.Policy
	sink     *recorder
	outcomes []outcome
	clock    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	policy, err := transaction.NewPolicy(transaction.DefaultSettings())
	require.NoError(t, err)
	return &harness{
		policy: policy,
		sink:   &recorder{},
		clock:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (h *harness) run(t *testing.T, input string) {
	t.Helper()
	src := &fakeSource{events: typed(t, input), end: device.ErrClosed}
	p := New(src, h.policy, h.sink, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(func() time.Time { return h.clock }),
		OnOutcome(func(payload string, out transaction.Outcome) {
			h.outcomes = append(h.outcomes, outcome{payload, out})
		}),
	)
	require.NoError(t, p.Run(context.Background()))
}

func TestScenarioModeCommand(t *testing.T) {
	h := newHarness(t)
	h.run(t, transaction.DefaultTakeCode+"\n")

	require.Len(t, h.outcomes, 1)
	assert.Equal(t, transaction.ModeChanged, h.outcomes[0].out.Kind)
	assert.Equal(t, transaction.Take, h.outcomes[0].out.Direction)
	assert.Empty(t, h.sink.recs)
}

func TestScenarioRecordAfterModeCommand(t *testing.T) {
	h := newHarness(t)
	h.run(t, transaction.DefaultTakeCode+"\n")

	h.clock = h.clock.Add(5 * time.Second)
	h.run(t, "012345678901\n")

	require.Len(t, h.outcomes, 2)
	assert.Equal(t, transaction.Recorded, h.outcomes[1].out.Kind)
	assert.Equal(t, transaction.Take, h.outcomes[1].out.Direction)

	require.Len(t, h.sink.recs, 1)
	assert.Equal(t, "012345678901", h.sink.recs[0].Payload)
	assert.Equal(t, transaction.Take, h.sink.recs[0].Direction)
	assert.True(t, h.sink.recs[0].Time.Equal(h.clock))
}

func TestScenarioShortScanDiscarded(t *testing.T) {
	h := newHarness(t)
	h.run(t, transaction.DefaultAddCode+"\n")
	before := h.policy.State()

	h.clock = h.clock.Add(time.Second)
	h.run(t, "1234567890\n")

	require.Len(t, h.outcomes, 2)
	assert.Equal(t, transaction.Discarded, h.outcomes[1].out.Kind)
	assert.Equal(t, transaction.ReasonTooShort, h.outcomes[1].out.Reason)
	assert.Empty(t, h.sink.recs)
	assert.Equal(t, before, h.policy.State())
}

func TestAddModeRevertsWhenStale(t *testing.T) {
	h := newHarness(t)
	h.run(t, transaction.DefaultAddCode+"\n")

	h.clock = h.clock.Add(599 * time.Second)
	h.run(t, "111111111111\n")

	h.clock = h.clock.Add(601 * time.Second)
	h.run(t, "222222222222\n")

	require.Len(t, h.sink.recs, 2)
	assert.Equal(t, transaction.Add, h.sink.recs[0].Direction)
	assert.Equal(t, transaction.Take, h.sink.recs[1].Direction)
}

func TestIgnoredKeysDropOut(t *testing.T) {
	h := newHarness(t)
	src := &fakeSource{end: device.ErrClosed}
	src.events = append(src.events, typed(t, "12345")...)
	// Shift and autorepeat carry nothing.
	src.events = append(src.events,
		device.KeyPress(int(evdev.KEY_LEFTSHIFT)),
		device.Event{Type: uint16(evdev.EV_KEY), Code: uint16(evdev.KEY_9), Value: device.Repeat},
	)
	src.events = append(src.events, typed(t, "67 890ab\n")...)

	p := New(src, h.policy, h.sink, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(func() time.Time { return h.clock }))
	require.NoError(t, p.Run(context.Background()))

	require.Len(t, h.sink.recs, 1)
	assert.Equal(t, "1234567890ab", h.sink.recs[0].Payload)
	assert.Empty(t, p.Pending())
}

func TestRecordedPayloadMatchesAcceptedCharacters(t *testing.T) {
	inputs := []string{
		"123456789012\n",
		"1 2 3 4 5 6 7 8 9 0 a b\n",
		"abcabcabc000\n",
		"000000000000\n",
	}
	for _, in := range inputs {
		t.Run(strings.TrimSpace(in), func(t *testing.T) {
			h := newHarness(t)
			h.run(t, in)

			want := strings.ReplaceAll(strings.TrimSuffix(in, "\n"), " ", "")
			require.Len(t, h.outcomes, 1)
			assert.Equal(t, want, h.outcomes[0].payload)
			if h.outcomes[0].out.Kind == transaction.Recorded {
				assert.Equal(t, want, h.outcomes[0].out.Record.Payload)
			}
		})
	}
}

func TestPartialScanStaysPending(t *testing.T) {
	h := newHarness(t)
	src := &fakeSource{events: typed(t, "12345"), end: device.ErrClosed}
	p := New(src, h.policy, h.sink, nil)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, "12345", p.Pending())
	assert.Empty(t, h.sink.recs)
}

func TestRunReadFailure(t *testing.T) {
	h := newHarness(t)
	src := &fakeSource{end: io.ErrUnexpectedEOF}
	p := New(src, h.policy, h.sink, nil)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrReadFailed)
}

func TestRunCancelled(t *testing.T) {
	h := newHarness(t)
	src := &fakeSource{end: errors.New("bad file descriptor")}
	p := New(src, h.policy, h.sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, p.Run(ctx))
}

func TestDump(t *testing.T) {
	src := &fakeSource{events: typed(t, "1a\n"), end: device.ErrClosed}
	var out bytes.Buffer

	require.NoError(t, Dump(context.Background(), src, &out))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	// Two key events per character; the terminator's rune is itself a newline.
	assert.Equal(t, "Event: type 1 code 2 value 1:   1", lines[0])
	assert.Equal(t, "Event: type 1 code 2 value 0:   1", lines[1])
	assert.Equal(t, "Event: type 1 code 30 value 1:   a", lines[2])
	assert.NotContains(t, out.String(), "type 0")
}
