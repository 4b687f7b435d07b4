package connector

import (
	"context"
	"testing"

	"github.com/dkeye/msgpipe/internal/core"
	"github.com/dkeye/msgpipe/internal/core/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	h *mock.MockHandle
	w *mock.MockWatcher

	notify  core.WatchCallback
	watches int
	cancels int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		h: mock.NewMockHandle(ctrl),
		w: mock.NewMockWatcher(ctrl),
	}
	f.h.EXPECT().IsValid().Return(true).AnyTimes()
	f.h.EXPECT().Watch(core.SignalReadable, gomock.Any()).DoAndReturn(
		func(_ core.Signals, cb core.WatchCallback) core.Watcher {
			f.notify = cb
			f.watches++
			return f.w
		}).AnyTimes()
	f.w.EXPECT().Cancel().Do(func() { f.cancels++ }).AnyTimes()
	return f
}

func (f *fixture) fire() { f.notify(core.ResultOK) }

func okRead(payload string, handles ...core.Handle) core.ReadResult {
	return core.ReadResult{Result: core.ResultOK, Payload: []byte(payload), Handles: handles}
}

func result(r core.Result) core.ReadResult { return core.ReadResult{Result: r} }

type recorder struct {
	got    []string
	reject bool
	onMsg  func(*core.Message)
}

func (r *recorder) Accept(msg *core.Message) bool {
	r.got = append(r.got, string(msg.Payload))
	if r.onMsg != nil {
		r.onMsg(msg)
	}
	return !r.reject
}

type errorCounter struct{ n int }

func (e *errorCounter) OnError() { e.n++ }

func TestNew_invalidHandle(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := mock.NewMockHandle(ctrl)
	h.EXPECT().IsValid().Return(false)

	c, err := New(h)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNew_armsWatch(t *testing.T) {
	f := newFixture(t)
	c, err := New(f.h)
	require.NoError(t, err)

	assert.Equal(t, 1, f.watches)
	assert.False(t, c.Paused())
	assert.False(t, c.Errored())
	assert.False(t, c.DropsWrites())
	assert.NotEmpty(t, c.ID())
}

func TestNew_nilHandleIsInert(t *testing.T) {
	c, err := New(nil, WithID("inert"))
	require.NoError(t, err)

	assert.Equal(t, "inert", c.ID())
	assert.False(t, c.Accept(core.NewMessage([]byte("x"))))
	c.PauseIncomingMethodCallProcessing()
	c.ResumeIncomingMethodCallProcessing()
	c.WaitForNextMessageForTesting(context.Background())
	assert.Nil(t, c.PassHandle())
	c.Close()
	c.Close()
	assert.True(t, c.Closed())
}

func TestAccept_ok(t *testing.T) {
	f := newFixture(t)
	other := mock.NewMockHandle(gomock.NewController(t))
	f.h.EXPECT().Write([]byte("hello"), []core.Handle{other}, core.WriteFlagNone).Return(core.ResultOK).Times(1)

	c, err := New(f.h)
	require.NoError(t, err)

	msg := core.NewMessage([]byte("hello"), other)
	assert.True(t, c.Accept(msg))
	assert.Empty(t, msg.Handles)
	assert.Equal(t, int64(1), c.Stats().Sent)
}

func TestAccept_rejectedKeepsHandles(t *testing.T) {
	f := newFixture(t)
	other := mock.NewMockHandle(gomock.NewController(t))
	gomock.InOrder(
		f.h.EXPECT().Write(gomock.Any(), gomock.Any(), gomock.Any()).Return(core.ResultInvalidArgument),
		f.h.EXPECT().Write(gomock.Any(), gomock.Any(), gomock.Any()).Return(core.ResultOK),
	)

	c, err := New(f.h)
	require.NoError(t, err)

	msg := core.NewMessage([]byte("bad"), other)
	assert.False(t, c.Accept(msg))
	assert.Equal(t, []core.Handle{other}, msg.Handles)
	assert.False(t, c.DropsWrites())

	// The pipe is still usable.
	assert.True(t, c.Accept(core.NewMessage([]byte("good"))))
	assert.Equal(t, Stats{Sent: 1, Rejected: 1}, c.Stats())
}

func TestAccept_peerGoneDropsLaterWrites(t *testing.T) {
	f := newFixture(t)
	f.h.EXPECT().Write([]byte("A"), gomock.Any(), gomock.Any()).Return(core.ResultFailedPrecondition).Times(1)

	c, err := New(f.h)
	require.NoError(t, err)

	a := core.NewMessage([]byte("A"))
	b := core.NewMessage([]byte("B"))
	assert.True(t, c.Accept(a))
	assert.True(t, c.DropsWrites())
	assert.True(t, c.Accept(b))
	assert.True(t, c.Accept(core.NewMessage([]byte("C"))))
	assert.Equal(t, int64(3), c.Stats().Dropped)
}

func TestAccept_mixedResultsBeforePeerGone(t *testing.T) {
	f := newFixture(t)
	results := []core.Result{
		core.ResultOK, core.ResultInvalidArgument, core.ResultOK,
		core.ResultResourceExhausted, core.ResultUnknown, core.ResultOK,
	}
	var prev *gomock.Call
	for _, r := range results {
		call := f.h.EXPECT().Write(gomock.Any(), gomock.Any(), gomock.Any()).Return(r)
		if prev != nil {
			call.After(prev)
		}
		prev = call
	}

	c, err := New(f.h)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	for _, r := range results {
		att := mock.NewMockHandle(ctrl)
		msg := core.NewMessage([]byte("m"), att)
		ok := c.Accept(msg)
		if r == core.ResultOK {
			assert.True(t, ok)
			assert.Empty(t, msg.Handles)
		} else {
			assert.False(t, ok)
			assert.Equal(t, []core.Handle{att}, msg.Handles)
		}
	}
	assert.False(t, c.DropsWrites())
}

func TestAccept_afterErrorFails(t *testing.T) {
	f := newFixture(t)
	f.h.EXPECT().Read(core.ReadFlagNone).Return(result(core.ResultUnknown))

	c, err := New(f.h)
	require.NoError(t, err)
	f.fire()

	require.True(t, c.Errored())
	assert.False(t, c.Accept(core.NewMessage([]byte("late"))))
}

func TestAccept_afterCloseFails(t *testing.T) {
	f := newFixture(t)
	f.h.EXPECT().Close().Return(core.ResultOK)

	c, err := New(f.h)
	require.NoError(t, err)
	c.Close()

	assert.False(t, c.Accept(core.NewMessage([]byte("late"))))
}

func TestReadMore_drainsInOrder(t *testing.T) {
	f := newFixture(t)
	gomock.InOrder(
		f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead("P1")),
		f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead("P2")),
		f.h.EXPECT().Read(core.ReadFlagNone).Return(result(core.ResultShouldWait)),
	)

	c, err := New(f.h)
	require.NoError(t, err)
	rec := &recorder{}
	errs := &errorCounter{}
	c.SetIncomingReceiver(rec)
	c.SetErrorHandler(errs)

	f.fire()

	assert.Equal(t, []string{"P1", "P2"}, rec.got)
	assert.Equal(t, 0, errs.n)
	assert.False(t, c.Errored())
	assert.Equal(t, 0, f.cancels)
}

func TestReadMore_manyPayloadsInOrder(t *testing.T) {
	f := newFixture(t)
	want := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var prev *gomock.Call
	for _, p := range want {
		call := f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead(p))
		if prev != nil {
			call.After(prev)
		}
		prev = call
	}
	f.h.EXPECT().Read(core.ReadFlagNone).Return(result(core.ResultShouldWait)).After(prev)

	c, err := New(f.h)
	require.NoError(t, err)
	rec := &recorder{}
	c.SetIncomingReceiver(rec)
	f.fire()

	assert.Equal(t, want, rec.got)
	assert.Equal(t, int64(len(want)), c.Stats().Received)
}

func TestReadMore_fatalErrorOnce(t *testing.T) {
	f := newFixture(t)
	f.h.EXPECT().Read(core.ReadFlagNone).Return(result(core.ResultUnknown)).Times(1)

	c, err := New(f.h)
	require.NoError(t, err)
	rec := &recorder{}
	errs := &errorCounter{}
	c.SetIncomingReceiver(rec)
	c.SetErrorHandler(errs)

	f.fire()
	f.fire()
	f.fire()

	assert.Empty(t, rec.got)
	assert.Equal(t, 1, errs.n)
	assert.True(t, c.Errored())
	assert.Equal(t, 1, f.cancels)

	// Errored overrides paused: resuming never re-arms the watch.
	c.PauseIncomingMethodCallProcessing()
	c.ResumeIncomingMethodCallProcessing()
	assert.Equal(t, 1, f.watches)
}

func TestReadMore_peerClosedIsFatal(t *testing.T) {
	f := newFixture(t)
	gomock.InOrder(
		f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead("last")),
		f.h.EXPECT().Read(core.ReadFlagNone).Return(result(core.ResultFailedPrecondition)),
	)

	c, err := New(f.h)
	require.NoError(t, err)
	rec := &recorder{}
	errs := &errorCounter{}
	c.SetIncomingReceiver(rec)
	c.SetErrorHandler(errs)

	f.notify(core.ResultFailedPrecondition)

	assert.Equal(t, []string{"last"}, rec.got)
	assert.Equal(t, 1, errs.n)
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	gomock.InOrder(
		f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead("P1")),
		f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead("P2")),
		f.h.EXPECT().Read(core.ReadFlagNone).Return(result(core.ResultShouldWait)),
	)

	c, err := New(f.h)
	require.NoError(t, err)
	rec := &recorder{}
	c.SetIncomingReceiver(rec)
	stale := f.notify

	c.PauseIncomingMethodCallProcessing()
	c.PauseIncomingMethodCallProcessing()
	assert.True(t, c.Paused())
	assert.Equal(t, 1, f.cancels)

	// Notifications that were already in flight are ignored.
	stale(core.ResultOK)
	stale(core.ResultOK)
	assert.Empty(t, rec.got)

	c.ResumeIncomingMethodCallProcessing()
	c.ResumeIncomingMethodCallProcessing()
	assert.False(t, c.Paused())
	assert.Equal(t, 2, f.watches)
	assert.Empty(t, rec.got, "resume must not drain synchronously")

	f.fire()
	assert.Equal(t, []string{"P1", "P2"}, rec.got)
}

func TestPause_fromReceiverStopsLoop(t *testing.T) {
	f := newFixture(t)
	f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead("P1")).Times(1)

	c, err := New(f.h)
	require.NoError(t, err)
	rec := &recorder{}
	rec.onMsg = func(*core.Message) { c.PauseIncomingMethodCallProcessing() }
	c.SetIncomingReceiver(rec)

	f.fire()
	assert.Equal(t, []string{"P1"}, rec.got)
}

func TestClose_idempotent(t *testing.T) {
	f := newFixture(t)
	f.h.EXPECT().Close().Return(core.ResultOK).Times(1)

	c, err := New(f.h)
	require.NoError(t, err)

	c.Close()
	c.Close()

	assert.True(t, c.Closed())
	assert.Equal(t, 1, f.cancels)
	c.PauseIncomingMethodCallProcessing()
	c.ResumeIncomingMethodCallProcessing()
	assert.Equal(t, 1, f.watches)
}

func TestClose_fromReceiverStopsLoop(t *testing.T) {
	f := newFixture(t)
	f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead("P1")).Times(1)
	f.h.EXPECT().Close().Return(core.ResultOK).Times(1)

	c, err := New(f.h)
	require.NoError(t, err)
	rec := &recorder{}
	rec.onMsg = func(*core.Message) { c.Close() }
	c.SetIncomingReceiver(rec)
	errs := &errorCounter{}
	c.SetErrorHandler(errs)

	f.fire()

	assert.Equal(t, []string{"P1"}, rec.got)
	assert.Equal(t, 0, errs.n)
	assert.True(t, c.Closed())
}

func TestPassHandle(t *testing.T) {
	f := newFixture(t)

	c, err := New(f.h)
	require.NoError(t, err)

	h := c.PassHandle()
	assert.Equal(t, core.Handle(f.h), h)
	assert.Equal(t, 1, f.cancels)
	assert.True(t, c.Closed())
	assert.Nil(t, c.PassHandle())
	c.Close()
}

func TestDrainLimit(t *testing.T) {
	f := newFixture(t)
	gomock.InOrder(
		f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead("P1")),
		f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead("P2")),
		f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead("P3")),
		f.h.EXPECT().Read(core.ReadFlagNone).Return(result(core.ResultShouldWait)),
	)

	c, err := New(f.h, WithDrainLimit(2))
	require.NoError(t, err)
	rec := &recorder{}
	c.SetIncomingReceiver(rec)

	f.fire()
	assert.Equal(t, []string{"P1", "P2"}, rec.got)

	f.fire()
	assert.Equal(t, []string{"P1", "P2", "P3"}, rec.got)
}

func TestRejectFatal(t *testing.T) {
	f := newFixture(t)
	f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead("junk")).Times(1)

	c, err := New(f.h, WithRejectFatal(true))
	require.NoError(t, err)
	rec := &recorder{reject: true}
	errs := &errorCounter{}
	c.SetIncomingReceiver(rec)
	c.SetErrorHandler(errs)

	f.fire()
	f.fire()

	assert.Equal(t, 1, errs.n)
	assert.True(t, c.Errored())
}

func TestRejectIgnoredByDefault(t *testing.T) {
	f := newFixture(t)
	gomock.InOrder(
		f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead("junk")),
		f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead("more")),
		f.h.EXPECT().Read(core.ReadFlagNone).Return(result(core.ResultShouldWait)),
	)

	c, err := New(f.h)
	require.NoError(t, err)
	rec := &recorder{reject: true}
	c.SetIncomingReceiver(rec)

	f.fire()
	assert.Equal(t, []string{"junk", "more"}, rec.got)
	assert.False(t, c.Errored())
}

func TestNilReceiverDropsAndClosesHandles(t *testing.T) {
	f := newFixture(t)
	att := mock.NewMockHandle(gomock.NewController(t))
	att.EXPECT().Close().Return(core.ResultOK).Times(1)
	gomock.InOrder(
		f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead("orphan", att)),
		f.h.EXPECT().Read(core.ReadFlagNone).Return(result(core.ResultShouldWait)),
	)

	c, err := New(f.h)
	require.NoError(t, err)
	c.SetIncomingReceiver(nil)

	f.fire()
	assert.Equal(t, int64(1), c.Stats().Received)
}

func TestInboundHandlesReachReceiver(t *testing.T) {
	f := newFixture(t)
	att := mock.NewMockHandle(gomock.NewController(t))
	gomock.InOrder(
		f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead("with-handle", att)),
		f.h.EXPECT().Read(core.ReadFlagNone).Return(result(core.ResultShouldWait)),
	)

	c, err := New(f.h)
	require.NoError(t, err)
	var got []core.Handle
	c.SetIncomingReceiver(ReceiverFunc(func(msg *core.Message) bool {
		got = msg.TakeHandles()
		return true
	}))

	f.fire()
	assert.Equal(t, []core.Handle{att}, got)
}

func TestErrorHandlerReplaced(t *testing.T) {
	f := newFixture(t)
	f.h.EXPECT().Read(core.ReadFlagNone).Return(result(core.ResultDataLoss))

	c, err := New(f.h)
	require.NoError(t, err)
	first := &errorCounter{}
	second := 0
	c.SetErrorHandler(first)
	c.SetErrorHandler(ErrorHandlerFunc(func() { second++ }))

	f.fire()
	assert.Equal(t, 0, first.n)
	assert.Equal(t, 1, second)
}

func TestWaitForNextMessageForTesting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.h.EXPECT().Wait(ctx, core.SignalReadable).Return(core.ResultOK)
	gomock.InOrder(
		f.h.EXPECT().Read(core.ReadFlagNone).Return(okRead("P1")),
		f.h.EXPECT().Read(core.ReadFlagNone).Return(result(core.ResultShouldWait)),
	)

	c, err := New(f.h)
	require.NoError(t, err)
	rec := &recorder{}
	c.SetIncomingReceiver(rec)

	c.WaitForNextMessageForTesting(ctx)
	assert.Equal(t, []string{"P1"}, rec.got)
}
