package bridge

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/kbukum/asyncify/config"
	"github.com/kbukum/asyncify/errors"
	"github.com/kbukum/asyncify/logger"
	"github.com/kbukum/asyncify/observability"
)

// errSink records every failure routed to the error handler.
type errSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *errSink) handle(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *errSink) all() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

// manual returns a listener whose emit function is exposed to the test.
func manual[T any](completion Completion[struct{}]) (Listener[T, struct{}], func() func(T)) {
	var emit func(T)
	l := func(e func(T)) (Completion[struct{}], error) {
		emit = e
		return completion, nil
	}
	return l, func() func(T) { return emit }
}

func newTestBridge[T, R any](t *testing.T, l Listener[T, R], sink *errSink, opts ...Option) *Bridge[T, R] {
	t.Helper()
	base := []Option{WithLogger(logger.Nop()), WithName(t.Name())}
	if sink != nil {
		base = append(base, WithOnError(sink.handle))
	}
	return New(l, append(base, opts...)...)
}

func mustNext[T any](t *testing.T, it Iterator[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, ok, err := it.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a value, got done")
	}
	return v
}

func mustDone[T any](t *testing.T, it Iterator[T]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, ok, err := it.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ok {
		t.Fatalf("expected done, got value %v", v)
	}
}

func resolved[T any](t *testing.T, ch <-chan Result[T]) (Result[T], bool) {
	t.Helper()
	select {
	case r := <-ch:
		return r, true
	default:
		return Result[T]{}, false
	}
}

func TestEmitThenPullPreservesOrder(t *testing.T) {
	l, emitter := manual[int](Pending[struct{}]())
	b := newTestBridge(t, l, &errSink{})
	defer b.Close()

	emit := emitter()
	for i := 1; i <= 5; i++ {
		emit(i)
	}
	if got := b.Stats().Buffered; got != 5 {
		t.Fatalf("expected 5 buffered values, got %d", got)
	}
	for i := 1; i <= 5; i++ {
		if v := mustNext[int](t, b); v != i {
			t.Errorf("pull %d: expected %d, got %d", i, i, v)
		}
	}
}

func TestPullThenEmitPreservesOrder(t *testing.T) {
	l, emitter := manual[int](Pending[struct{}]())
	b := newTestBridge(t, l, &errSink{})
	defer b.Close()

	pulls := []<-chan Result[int]{b.Pull(), b.Pull(), b.Pull()}
	if got := b.Stats().Pending; got != 3 {
		t.Fatalf("expected 3 pending pulls, got %d", got)
	}

	emit := emitter()
	emit(10)
	emit(20)
	emit(30)

	for i, ch := range pulls {
		r, ok := resolved(t, ch)
		if !ok {
			t.Fatalf("pull %d not resolved after emit", i)
		}
		if r.Done || r.Value != (i+1)*10 {
			t.Errorf("pull %d: expected {%d false}, got %+v", i, (i+1)*10, r)
		}
	}
	if s := b.Stats(); s.Pending != 0 || s.Buffered != 0 {
		t.Errorf("expected empty queues, got %+v", s)
	}
}

func TestWithoutBufferingDropsUnpulledValues(t *testing.T) {
	l, emitter := manual[int](Pending[struct{}]())
	b := newTestBridge(t, l, &errSink{}, WithBuffering(false))
	defer b.Close()

	emit := emitter()
	emit(1)
	if got := b.Stats().Buffered; got != 0 {
		t.Fatalf("expected nothing buffered, got %d", got)
	}

	ch := b.Pull()
	if _, ok := resolved(t, ch); ok {
		t.Fatal("pull resolved without an emission after it")
	}
	emit(2)
	r, ok := resolved(t, ch)
	if !ok || r.Value != 2 {
		t.Errorf("expected pull to observe 2, got %+v (resolved=%v)", r, ok)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	var calls atomic.Int32
	l, _ := manual[int](Pending[struct{}]())
	b := newTestBridge(t, l, &errSink{}, WithOnClose(func(struct{}, bool) error {
		calls.Add(1)
		return nil
	}))

	if err := b.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	mustDone[int](t, b)
	mustDone[int](t, b)

	if got := calls.Load(); got != 1 {
		t.Errorf("expected close hook to run once, ran %d times", got)
	}
}

func TestPullAfterCloseNeverBlocks(t *testing.T) {
	l, emitter := manual[int](Pending[struct{}]())
	b := newTestBridge(t, l, &errSink{})
	emitter()(1)
	b.Close()

	for i := 0; i < 3; i++ {
		r, ok := resolved(t, b.Pull())
		if !ok {
			t.Fatal("pull after close did not resolve immediately")
		}
		if !r.Done || r.Err != nil {
			t.Errorf("expected {done}, got %+v", r)
		}
	}

	emitter()(2)
	if s := b.Stats(); s.Buffered != 0 || !s.Closed {
		t.Errorf("expected closed bridge to drop emissions, got %+v", s)
	}
}

func TestPendingPullWaitsForEmission(t *testing.T) {
	l, emitter := manual[string](Pending[struct{}]())
	b := newTestBridge(t, l, &errSink{})
	defer b.Close()

	ch := b.Pull()
	time.Sleep(10 * time.Millisecond)
	if _, ok := resolved(t, ch); ok {
		t.Fatal("pull resolved before any emission")
	}

	emitter()("hello")
	select {
	case r := <-ch:
		if r.Value != "hello" || r.Done {
			t.Errorf("expected {hello false}, got %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("pull never resolved")
	}
}

func TestCloseResolvesPendingPullsInOrder(t *testing.T) {
	l, _ := manual[int](Pending[struct{}]())
	b := newTestBridge(t, l, &errSink{})

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		ch := b.Pull()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := <-ch
			if !r.Done {
				t.Errorf("pull %d: expected done, got %+v", i, r)
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}(i)
	}

	b.Close()
	wg.Wait()
	if len(order) != 3 {
		t.Fatalf("expected 3 resolved pulls, got %v", order)
	}
	if s := b.Stats(); s.Pending != 0 {
		t.Errorf("expected no pending pulls, got %d", s.Pending)
	}
}

func TestCloseHookReceivesSettledResult(t *testing.T) {
	type call struct {
		result int
		ok     bool
	}
	var got []call
	l := func(func(string)) (Completion[int], error) { return Settled(42), nil }
	b := newTestBridge(t, l, &errSink{}, WithOnClose(func(r int, ok bool) error {
		got = append(got, call{r, ok})
		return nil
	}))

	b.Wait()
	if r, ok := b.Outcome(); !ok || r != 42 {
		t.Fatalf("expected outcome 42, got %d (%v)", r, ok)
	}
	b.Close()

	if len(got) != 1 || got[0] != (call{42, true}) {
		t.Errorf("expected hook called once with (42, true), got %+v", got)
	}
}

func TestCloseHookBeforeSettlement(t *testing.T) {
	release := make(chan struct{})
	var (
		calls  atomic.Int32
		result atomic.Int64
		okSeen atomic.Bool
	)
	l := func(func(string)) (Completion[int], error) {
		return func() (int, error) {
			<-release
			return 7, nil
		}, nil
	}
	b := newTestBridge(t, l, &errSink{}, WithOnClose(func(r int, ok bool) error {
		calls.Add(1)
		result.Store(int64(r))
		okSeen.Store(ok)
		return nil
	}))

	b.Close()
	close(release)
	b.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected one hook call, got %d", calls.Load())
	}
	if okSeen.Load() || result.Load() != 0 {
		t.Errorf("expected hook to see no result, got (%d, %v)", result.Load(), okSeen.Load())
	}
	if r, ok := b.Outcome(); !ok || r != 7 {
		t.Errorf("expected late outcome 7 to be recorded, got %d (%v)", r, ok)
	}
}

func TestCloseHookNeverSettles(t *testing.T) {
	var seen atomic.Bool
	l := func(func(int)) (Completion[string], error) { return Pending[string](), nil }
	b := newTestBridge(t, l, &errSink{}, WithOnClose(func(r string, ok bool) error {
		seen.Store(ok || r != "")
		return nil
	}))
	b.Close()
	b.Wait()

	if seen.Load() {
		t.Error("expected hook to receive no result")
	}
}

func TestDelayedEmissionsArriveInOrder(t *testing.T) {
	l := func(emit func(int)) (Completion[struct{}], error) {
		go func() {
			time.Sleep(5 * time.Millisecond)
			emit(1)
			time.Sleep(15 * time.Millisecond)
			emit(2)
		}()
		return Pending[struct{}](), nil
	}
	b := newTestBridge(t, l, &errSink{})
	defer b.Close()

	if v := mustNext[int](t, b); v != 1 {
		t.Errorf("expected 1, got %d", v)
	}
	if v := mustNext[int](t, b); v != 2 {
		t.Errorf("expected 2, got %d", v)
	}
}

func TestSynchronousEmissionsAreBuffered(t *testing.T) {
	l := func(emit func(int)) (Completion[string], error) {
		emit(1)
		emit(2)
		return Settled("done"), nil
	}
	b := newTestBridge(t, l, &errSink{})
	defer b.Close()

	time.Sleep(10 * time.Millisecond)
	if v := mustNext[int](t, b); v != 1 {
		t.Errorf("expected 1, got %d", v)
	}
	if v := mustNext[int](t, b); v != 2 {
		t.Errorf("expected 2, got %d", v)
	}
}

func TestFailedCompletionReportsOnce(t *testing.T) {
	boom := stderrors.New("boom")
	sink := &errSink{}
	l := func(func(int)) (Completion[int], error) { return Failed[int](boom), nil }
	b := newTestBridge(t, l, sink)
	defer b.Close()
	b.Wait()

	errs := sink.all()
	if len(errs) != 1 {
		t.Fatalf("expected one routed error, got %v", errs)
	}
	if !stderrors.Is(errs[0], boom) {
		t.Errorf("expected routed error to wrap boom, got %v", errs[0])
	}
	if !errors.HasCode(errs[0], errors.ErrCodeProducerFailed) {
		t.Errorf("expected PRODUCER_FAILED, got %v", errors.CodeOf(errs[0]))
	}

	s := b.Stats()
	if s.Closed || s.Buffered != 0 || s.Settled {
		t.Errorf("expected open bridge with no values, got %+v", s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok, err := b.Next(ctx); ok || !errors.HasCode(err, errors.ErrCodeCanceled) {
		t.Errorf("expected no value from the failure, got ok=%v err=%v", ok, err)
	}
}

func TestPanickingCompletionIsRouted(t *testing.T) {
	sink := &errSink{}
	l := func(func(int)) (Completion[int], error) {
		return func() (int, error) { panic("completion exploded") }, nil
	}
	b := newTestBridge(t, l, sink)
	defer b.Close()
	b.Wait()

	errs := sink.all()
	if len(errs) != 1 || !errors.HasCode(errs[0], errors.ErrCodeProducerFailed) {
		t.Fatalf("expected one PRODUCER_FAILED error, got %v", errs)
	}
}

func TestFaultResolvesPendingPulls(t *testing.T) {
	boom := stderrors.New("consumer gave up")
	sink := &errSink{}
	var hookCalls atomic.Int32
	l, _ := manual[int](Pending[struct{}]())
	b := newTestBridge(t, l, sink, WithOnClose(func(struct{}, bool) error {
		hookCalls.Add(1)
		return nil
	}))

	a, c := b.Pull(), b.Pull()
	if err := b.Fault(boom); err != boom {
		t.Fatalf("expected Fault to return boom, got %v", err)
	}

	for i, ch := range []<-chan Result[int]{a, c} {
		r, ok := resolved(t, ch)
		if !ok || !r.Done {
			t.Errorf("pull %d: expected done, got %+v (resolved=%v)", i, r, ok)
		}
	}
	errs := sink.all()
	if len(errs) != 1 || errs[0] != boom {
		t.Errorf("expected error handler to see boom once, got %v", errs)
	}
	if hookCalls.Load() != 1 {
		t.Errorf("expected close hook once, got %d", hookCalls.Load())
	}
	if err := b.Fault(nil); err != nil {
		t.Errorf("expected Fault(nil) on closed bridge to return nil, got %v", err)
	}
}

func TestRegistrationFailure(t *testing.T) {
	cases := map[string]Listener[int, struct{}]{
		"error": func(func(int)) (Completion[struct{}], error) {
			return nil, stderrors.New("no such topic")
		},
		"panic": func(emit func(int)) (Completion[struct{}], error) {
			emit(1)
			panic("listener exploded")
		},
	}

	for name, l := range cases {
		t.Run(name, func(t *testing.T) {
			sink := &errSink{}
			b := newTestBridge(t, l, sink)

			errs := sink.all()
			if len(errs) != 1 || !errors.HasCode(errs[0], errors.ErrCodeRegistrationFailed) {
				t.Fatalf("expected one REGISTRATION_FAILED error, got %v", errs)
			}
			if b.Err() == nil {
				t.Fatal("expected Err to report the failure")
			}

			if _, _, err := b.Next(context.Background()); err != b.Err() {
				t.Errorf("expected Next to return the failure, got %v", err)
			}
			r, ok := resolved(t, b.Pull())
			if !ok || !r.Done || r.Err != b.Err() {
				t.Errorf("expected failed pull, got %+v", r)
			}
			if err := b.Close(); err != b.Err() {
				t.Errorf("expected Close to return the failure, got %v", err)
			}
			other := stderrors.New("other")
			if err := b.Fault(other); err != other {
				t.Errorf("expected Fault to return its argument, got %v", err)
			}
			if s := b.Stats(); !s.Closed || s.Buffered != 0 {
				t.Errorf("expected closed empty bridge, got %+v", s)
			}
			if got := len(sink.all()); got != 1 {
				t.Errorf("expected failure to be routed once, got %d", got)
			}
		})
	}
}

func TestDefaultPolicyPanics(t *testing.T) {
	l := func(func(int)) (Completion[struct{}], error) { return nil, stderrors.New("refused") }

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok {
			t.Fatalf("expected panic with an error, got %v", r)
		}
		if !errors.HasCode(err, errors.ErrCodeUnhandled) {
			t.Errorf("expected UNHANDLED, got %v", err)
		}
		if !errors.HasCode(err, errors.ErrCodeRegistrationFailed) {
			t.Errorf("expected the registration failure as cause, got %v", err)
		}
	}()
	New(l, WithLogger(logger.Nop()))
	t.Fatal("expected New to panic")
}

func TestDefaultPolicyPanicSurfacesFromWait(t *testing.T) {
	l := func(func(int)) (Completion[int], error) { return Failed[int](stderrors.New("late")), nil }
	b := New(l, WithLogger(logger.Nop()))

	defer func() {
		if recover() == nil {
			t.Error("expected Wait to re-raise the background panic")
		}
	}()
	b.Wait()
}

func TestDefaultPolicyDefersBackgroundPanicToWait(t *testing.T) {
	l := func(func(int)) (Completion[int], error) { return Failed[int](stderrors.New("late")), nil }
	b := New(l, WithLogger(logger.Nop()))

	deadline := time.Now().Add(time.Second)
	for b.CheckHealth(context.Background()).Status != observability.HealthStatusDegraded {
		if time.Now().After(deadline) {
			t.Fatal("expected the failed completion to degrade the bridge")
		}
		time.Sleep(time.Millisecond)
	}
	if s := b.Stats(); s.Closed {
		t.Fatalf("expected the bridge to stay open until closed, got %+v", s)
	}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected Wait to re-raise the background failure")
		}
		rec, ok := r.(*panics.Recovered)
		if !ok || !errors.HasCode(rec.AsError(), errors.ErrCodeUnhandled) {
			t.Errorf("expected an UNHANDLED panic, got %v", r)
		}
	}()
	b.Wait()
}

func TestLogPolicyCarriesOn(t *testing.T) {
	l := func(func(int)) (Completion[int], error) { return Failed[int](stderrors.New("late")), nil }
	b := New(l, WithLogger(logger.Nop()), WithErrorPolicy(PolicyLog))
	b.Wait()
	if err := b.Close(); err != nil {
		t.Errorf("expected Close to succeed, got %v", err)
	}
}

func TestCloseHookFailureIsRouted(t *testing.T) {
	cases := map[string]func(struct{}, bool) error{
		"error": func(struct{}, bool) error { return stderrors.New("flush failed") },
		"panic": func(struct{}, bool) error { panic("flush exploded") },
	}
	for name, hook := range cases {
		t.Run(name, func(t *testing.T) {
			sink := &errSink{}
			l, _ := manual[int](Pending[struct{}]())
			b := newTestBridge(t, l, sink, WithOnClose(hook))

			if err := b.Close(); err != nil {
				t.Fatalf("expected Close to succeed, got %v", err)
			}
			errs := sink.all()
			if len(errs) != 1 || !errors.HasCode(errs[0], errors.ErrCodeCloseHookFailed) {
				t.Errorf("expected one CLOSE_HOOK_FAILED error, got %v", errs)
			}
		})
	}
}

func TestAsyncCloseHook(t *testing.T) {
	sink := &errSink{}
	release := make(chan struct{})
	var ran atomic.Bool
	l := func(func(int)) (Completion[string], error) { return Settled("final"), nil }
	b := newTestBridge(t, l, sink, WithOnCloseAsync(func(_ context.Context, r string, ok bool) error {
		<-release
		ran.Store(ok && r == "final")
		return stderrors.New("upload failed")
	}))
	b.Wait()

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(sink.all()) != 0 {
		t.Fatal("expected Close not to wait for the async hook")
	}

	close(release)
	b.Wait()
	if !ran.Load() {
		t.Error("expected async hook to receive the settled result")
	}
	errs := sink.all()
	if len(errs) != 1 || !errors.HasCode(errs[0], errors.ErrCodeCloseHookFailed) {
		t.Errorf("expected async hook failure to be routed, got %v", errs)
	}
}

func TestCanceledNextLosesNoValue(t *testing.T) {
	l, emitter := manual[int](Pending[struct{}]())
	b := newTestBridge(t, l, &errSink{})
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, ok, err := b.Next(ctx)
	if ok || !errors.HasCode(err, errors.ErrCodeCanceled) {
		t.Fatalf("expected CANCELED, got ok=%v err=%v", ok, err)
	}
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected error to wrap the context error, got %v", err)
	}
	if s := b.Stats(); s.Pending != 0 || s.Closed {
		t.Fatalf("expected withdrawn pull on open bridge, got %+v", s)
	}

	emitter()(7)
	if v := mustNext[int](t, b); v != 7 {
		t.Errorf("expected 7, got %d", v)
	}
}

func TestNextWithCanceledContext(t *testing.T) {
	l, _ := manual[int](Pending[struct{}]())
	b := newTestBridge(t, l, &errSink{})
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := b.Next(ctx); !errors.HasCode(err, errors.ErrCodeCanceled) {
		t.Errorf("expected CANCELED, got %v", err)
	}
	if b.Stats().Pending != 0 {
		t.Error("expected no pull to be queued")
	}
}

func TestBreakingAllClosesOnce(t *testing.T) {
	var calls atomic.Int32
	l, emitter := manual[int](Pending[struct{}]())
	b := newTestBridge(t, l, &errSink{}, WithOnClose(func(struct{}, bool) error {
		calls.Add(1)
		return nil
	}))
	emit := emitter()
	emit(1)
	emit(2)
	emit(3)

	var seen []int
	for v := range b.All(context.Background()) {
		seen = append(seen, v)
		if v == 2 {
			break
		}
	}

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("expected [1 2], got %v", seen)
	}
	if !b.Stats().Closed {
		t.Error("expected break to close the bridge")
	}
	b.Close()
	if calls.Load() != 1 {
		t.Errorf("expected close hook once, got %d", calls.Load())
	}
}

func TestAllEndsOnClose(t *testing.T) {
	l, emitter := manual[int](Pending[struct{}]())
	b := newTestBridge(t, l, &errSink{})
	emit := emitter()

	go func() {
		emit(1)
		emit(2)
		time.Sleep(10 * time.Millisecond)
		b.Close()
	}()

	var sum int
	for v := range b.All(context.Background()) {
		sum += v
	}
	if sum != 3 {
		t.Errorf("expected sum 3, got %d", sum)
	}
}

func TestSeq2YieldsFailure(t *testing.T) {
	l := func(func(int)) (Completion[struct{}], error) { return nil, stderrors.New("refused") }
	b := newTestBridge(t, l, &errSink{})

	var errs []error
	for _, err := range b.Seq2(context.Background()) {
		errs = append(errs, err)
	}
	if len(errs) != 1 || !errors.HasCode(errs[0], errors.ErrCodeRegistrationFailed) {
		t.Errorf("expected one registration failure, got %v", errs)
	}
}

func TestNextTimeoutFaults(t *testing.T) {
	sink := &errSink{}
	l, _ := manual[int](Pending[struct{}]())
	b := newTestBridge(t, l, sink)

	_, ok, err := NextTimeout[int](b, 10*time.Millisecond)
	if ok || !errors.HasCode(err, errors.ErrCodeTimeout) {
		t.Fatalf("expected TIMEOUT, got ok=%v err=%v", ok, err)
	}
	if !b.Stats().Closed {
		t.Error("expected timeout to close the bridge")
	}
	errs := sink.all()
	if len(errs) != 1 || !errors.HasCode(errs[0], errors.ErrCodeTimeout) {
		t.Errorf("expected TIMEOUT routed once, got %v", errs)
	}
}

func TestNextTimeoutReturnsValue(t *testing.T) {
	l, emitter := manual[int](Pending[struct{}]())
	b := newTestBridge(t, l, &errSink{})
	defer b.Close()
	emitter()(5)

	v, ok, err := NextTimeout[int](b, time.Second)
	if err != nil || !ok || v != 5 {
		t.Errorf("expected (5, true, nil), got (%d, %v, %v)", v, ok, err)
	}
}

func TestCollectAndForEach(t *testing.T) {
	ch := make(chan int, 4)
	for i := 1; i <= 4; i++ {
		ch <- i
	}
	close(ch)

	b := newTestBridge(t, FromChannel(ch), &errSink{})
	got, err := Collect[int](context.Background(), b, 2)
	if err != nil || len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected [1 2], got %v (%v)", got, err)
	}

	stop := stderrors.New("stop")
	var seen []int
	err = ForEach[int](context.Background(), b, func(v int) error {
		seen = append(seen, v)
		if v == 4 {
			return stop
		}
		return nil
	})
	if err != stop {
		t.Errorf("expected ForEach to return stop, got %v", err)
	}
	if len(seen) != 2 || seen[0] != 3 {
		t.Errorf("expected [3 4], got %v", seen)
	}
	if !b.Stats().Closed {
		t.Error("expected ForEach failure to fault the bridge")
	}
	b.Wait()
	if r, ok := b.Outcome(); !ok || r != (struct{}{}) {
		t.Error("expected channel listener to have settled")
	}
}

func TestFromFuncReportsFailure(t *testing.T) {
	sink := &errSink{}
	l := FromFunc(context.Background(), func(_ context.Context, emit func(string)) (int, error) {
		emit("a")
		return 0, stderrors.New("source hung up")
	})
	b := newTestBridge(t, l, sink)
	defer b.Close()
	b.Wait()

	if v := mustNext[string](t, b); v != "a" {
		t.Errorf("expected a, got %q", v)
	}
	if errs := sink.all(); len(errs) != 1 || !errors.HasCode(errs[0], errors.ErrCodeProducerFailed) {
		t.Errorf("expected PRODUCER_FAILED, got %v", errs)
	}
}

func TestConcurrentEmitters(t *testing.T) {
	const emitters, perEmitter = 8, 100
	l, emitter := manual[int](Pending[struct{}]())
	b := newTestBridge(t, l, &errSink{})
	defer b.Close()
	emit := emitter()

	for e := 0; e < emitters; e++ {
		go func(e int) {
			for i := 0; i < perEmitter; i++ {
				emit(e*perEmitter + i)
			}
		}(e)
	}

	seen := make(map[int]bool)
	for len(seen) < emitters*perEmitter {
		v := mustNext[int](t, b)
		if seen[v] {
			t.Fatalf("value %d delivered twice", v)
		}
		seen[v] = true
	}
	if s := b.Stats(); s.Buffered != 0 || s.Pending != 0 {
		t.Errorf("expected empty queues, got %+v", s)
	}
}

func TestCheckHealth(t *testing.T) {
	l, _ := manual[int](Pending[struct{}]())
	b := newTestBridge(t, l, &errSink{})
	if h := b.CheckHealth(context.Background()); h.Status != "up" || h.Name != t.Name() {
		t.Errorf("expected up, got %+v", h)
	}
	b.Close()
	if h := b.CheckHealth(context.Background()); h.Status != "down" {
		t.Errorf("expected down after close, got %+v", h)
	}

	fl := func(func(int)) (Completion[int], error) { return Failed[int](stderrors.New("x")), nil }
	degraded := newTestBridge(t, fl, &errSink{})
	defer degraded.Close()
	degraded.Wait()
	if h := degraded.CheckHealth(context.Background()); h.Status != "degraded" {
		t.Errorf("expected degraded after producer failure, got %+v", h)
	}
}

func TestFromConfig(t *testing.T) {
	opts := FromConfig(config.BridgeConfig{Buffering: false, ErrorPolicy: config.ErrorPolicyLog})
	s := defaultSettings()
	for _, o := range opts {
		o(&s)
	}
	if s.buffering || s.policy != PolicyLog {
		t.Errorf("expected buffering off and log policy, got %+v", s)
	}
}

func TestCloseHookTypeMismatch(t *testing.T) {
	sink := &errSink{}
	l := func(func(int)) (Completion[string], error) { return Settled("text"), nil }
	b := newTestBridge(t, l, sink, WithOnClose(func(int, bool) error { return nil }))
	b.Wait()
	b.Close()

	if errs := sink.all(); len(errs) != 1 || !errors.HasCode(errs[0], errors.ErrCodeCloseHookFailed) {
		t.Errorf("expected mismatched hook to fail, got %v", errs)
	}
}

func TestCancelingNextRacesEmitAndClose(t *testing.T) {
	for round := 0; round < 50; round++ {
		l, emitter := manual[int](Pending[struct{}]())
		b := newTestBridge(t, l, &errSink{})
		emit := emitter()

		var wg sync.WaitGroup
		stop := make(chan struct{})
		for e := 0; e < 4; e++ {
			wg.Add(1)
			go func(e int) {
				defer wg.Done()
				for i := 0; ; i++ {
					select {
					case <-stop:
						return
					default:
						emit(e*1000 + i)
					}
				}
			}(e)
		}
		for c := 0; c < 4; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					ctx, cancel := context.WithTimeout(context.Background(), time.Microsecond)
					_, ok, err := b.Next(ctx)
					cancel()
					if err == nil && !ok {
						return
					}
					select {
					case <-stop:
						return
					default:
					}
				}
			}()
		}

		for i := 0; i < 20; i++ {
			if s := b.Stats(); s.Buffered > 0 && s.Pending > 0 {
				t.Fatalf("round %d: both queues non-empty: %+v", round, s)
			}
		}
		b.Close()
		close(stop)
		wg.Wait()

		if s := b.Stats(); s.Pending != 0 || s.Buffered != 0 || !s.Closed {
			t.Fatalf("round %d: expected closed bridge with empty queues, got %+v", round, s)
		}
	}
}
