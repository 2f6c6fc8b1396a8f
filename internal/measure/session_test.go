package measure

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/banshee-data/sweep.report/internal/dataset"
	"github.com/banshee-data/sweep.report/internal/timeutil"
)

func TestBeginRequiresDataset(t *testing.T) {
	if _, err := Begin("nods", nil); err == nil {
		t.Fatal("Begin accepted a nil dataset")
	}
}

func TestEndIsNotReusable(t *testing.T) {
	s, err := Begin("twice", dataset.NewMemory("twice"))
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := s.End(nil); err != nil {
		t.Fatalf("first End failed: %v", err)
	}
	if err := s.End(nil); !errors.Is(err, ErrClosed) {
		t.Errorf("second End = %v, want ErrClosed", err)
	}
	if _, err := s.Measure(1.0, WithName("v")); !errors.Is(err, ErrClosed) {
		t.Errorf("Measure on closed session = %v, want ErrClosed", err)
	}
}

func TestNestedBeginSharesRunningSession(t *testing.T) {
	root, err := Begin("outer", dataset.NewMemory("outer"))
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer root.End(nil)

	if Running() != root {
		t.Fatal("root session not registered as running")
	}

	child, err := Begin("inner", nil)
	if err != nil {
		t.Fatalf("nested Begin failed: %v", err)
	}
	if Running() != root {
		t.Error("nested Begin displaced the running session")
	}
	if child.Dataset() != root.Dataset() {
		t.Error("nested session does not share the dataset")
	}
	if err := child.End(nil); err != nil {
		t.Fatalf("nested End failed: %v", err)
	}
}

func TestConcurrencyViolation(t *testing.T) {
	s, err := Begin("conc", dataset.NewMemory("conc"))
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer s.End(nil)

	measured := make(chan error, 1)
	go func() {
		_, err := s.Measure(1.0, WithName("v"))
		measured <- err
	}()
	if err := <-measured; !errors.Is(err, ErrConcurrencyViolation) {
		t.Errorf("Measure from other goroutine = %v, want ErrConcurrencyViolation", err)
	}

	nested := make(chan error, 1)
	go func() {
		_, err := Begin("intruder", nil)
		nested <- err
	}()
	if err := <-nested; !errors.Is(err, ErrConcurrencyViolation) {
		t.Errorf("Begin from other goroutine = %v, want ErrConcurrencyViolation", err)
	}
}

func TestPauseBlocksUntilResume(t *testing.T) {
	ds := dataset.NewMemory("pause")
	resumed := make(chan struct{})

	err := Run("pause", ds, func(m *Session) error {
		sw := m.Sweep(Counter(3), SweepName("x"))
		first := true
		for sw.Next() {
			if first {
				first = false
				m.Pause()
				if !m.Paused() {
					t.Error("Paused() false right after Pause")
				}
				go func() {
					time.Sleep(5 * time.Millisecond)
					m.Resume()
					close(resumed)
				}()
			}
			if _, err := m.Measure(sw.Value(), WithName("v")); err != nil {
				return err
			}
		}
		return sw.Err()
	}, WithPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	select {
	case <-resumed:
	default:
		t.Fatal("measurement completed without waiting for Resume")
	}
	v := ds.Arrays()["v_0_0"]
	if v == nil || len(v.Values()) != 3 {
		t.Fatalf("expected 3 measured points after resume, have %v", ds.ArrayIDs())
	}
}

func TestTooManyArraysWithoutSweep(t *testing.T) {
	err := Run("flood", dataset.NewMemory("flood"), func(m *Session) error {
		for {
			if _, err := m.Measure(1.0, WithName("v")); err != nil {
				return err
			}
		}
	}, WithMaxArrays(6))
	if !errors.Is(err, ErrTooManyArrays) {
		t.Fatalf("Run = %v, want ErrTooManyArrays", err)
	}
}

func TestFinalAndExceptActions(t *testing.T) {
	t.Run("clean exit", func(t *testing.T) {
		var finals, excepts int
		err := Run("clean", dataset.NewMemory("clean"), func(m *Session) error {
			m.AddFinalAction(func() { finals++ })
			m.AddExceptAction(func() { excepts++ })
			return nil
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if finals != 1 || excepts != 0 {
			t.Errorf("finals=%d excepts=%d, want 1/0", finals, excepts)
		}
	})

	t.Run("error exit", func(t *testing.T) {
		var finals, excepts int
		boom := fmt.Errorf("instrument on fire")
		err := Run("dirty", dataset.NewMemory("dirty"), func(m *Session) error {
			m.AddFinalAction(func() { finals++ })
			m.AddExceptAction(func() { excepts++ })
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Run = %v, want %v", err, boom)
		}
		if finals != 1 || excepts != 1 {
			t.Errorf("finals=%d excepts=%d, want 1/1", finals, excepts)
		}
	})

	t.Run("stop is not an error", func(t *testing.T) {
		var excepts int
		err := Run("stopped", dataset.NewMemory("stopped"), func(m *Session) error {
			m.AddExceptAction(func() { excepts++ })
			m.Stop()
			_, err := m.Measure(1.0, WithName("v"))
			return err
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if excepts != 0 {
			t.Errorf("except actions ran %d times on stop, want 0", excepts)
		}
	})

	t.Run("panicking action does not derail cleanup", func(t *testing.T) {
		var laterRan bool
		err := Run("panicky", dataset.NewMemory("panicky"), func(m *Session) error {
			m.AddFinalAction(func() { panic("bad hook") })
			m.AddFinalAction(func() { laterRan = true })
			return nil
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if !laterRan {
			t.Error("action after panicking hook did not run")
		}
	})
}

func TestGlobalActions(t *testing.T) {
	t.Cleanup(ClearGlobalActions)

	var finals, excepts int
	AddGlobalFinalAction(func() { finals++ })
	AddGlobalExceptAction(func() { excepts++ })

	if err := Run("ok", dataset.NewMemory("ok"), func(*Session) error { return nil }); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if finals != 1 || excepts != 0 {
		t.Fatalf("after clean run: finals=%d excepts=%d, want 1/0", finals, excepts)
	}

	boom := fmt.Errorf("boom")
	if err := Run("bad", dataset.NewMemory("bad"), func(*Session) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want %v", err, boom)
	}
	if finals != 2 || excepts != 1 {
		t.Fatalf("after failing run: finals=%d excepts=%d, want 2/1", finals, excepts)
	}
}

func TestObserverNotifiedOnce(t *testing.T) {
	var names []string
	var errs []error
	obs := ObserverFunc(func(name string, err error) {
		names = append(names, name)
		errs = append(errs, err)
	})

	err := Run("observed", dataset.NewMemory("observed"), func(m *Session) error {
		return m.Group("sub", func(*Session) error { return nil })
	}, WithObserver(obs))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(names) != 1 || names[0] != "observed" || errs[0] != nil {
		t.Errorf("observer calls = %v / %v, want one clean call for %q", names, errs, "observed")
	}
}

func TestTimestampsUseInjectedClock(t *testing.T) {
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	ds := dataset.NewMemory("clock")

	err := Run("clock", ds, func(m *Session) error {
		clock.Advance(3 * time.Second)
		if got := m.Elapsed(); got != 3*time.Second {
			t.Errorf("Elapsed() = %v, want 3s", got)
		}
		_, err := m.Measure(1.0, WithName("v"))
		return err
	}, WithClock(clock))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	md := ds.Metadata()
	tStart, err := time.Parse(time.RFC3339Nano, md["t_start"].(string))
	if err != nil {
		t.Fatalf("bad t_start %v: %v", md["t_start"], err)
	}
	tStop, err := time.Parse(time.RFC3339Nano, md["t_stop"].(string))
	if err != nil {
		t.Fatalf("bad t_stop %v: %v", md["t_stop"], err)
	}
	if got := tStop.Sub(tStart); got != 3*time.Second {
		t.Errorf("t_stop - t_start = %v, want 3s", got)
	}
}

func TestGroupRecordsDataGroupMetadata(t *testing.T) {
	ds := dataset.NewMemory("groups")
	err := Run("groups", ds, func(m *Session) error {
		return m.Group("readout", func(g *Session) error {
			_, err := g.Measure(0.25, WithName("fidelity"))
			return err
		})
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, ok := ds.Arrays()["fidelity_0_0"]; !ok {
		t.Errorf("missing grouped array fidelity_0_0, have %v", ds.ArrayIDs())
	}
	if _, ok := ds.Metadata()["data_groups"]; !ok {
		t.Error("data_groups metadata not recorded")
	}
}

func TestRunRepanicsAfterCleanup(t *testing.T) {
	knob := 1.0
	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic did not propagate out of Run")
			}
		}()
		_ = Run("panic", dataset.NewMemory("panic"), func(m *Session) error {
			if _, err := m.Mask(AttrTarget(&knob, "value",
				func() any { return knob },
				func(v any) { knob = v.(float64) }), 9.0); err != nil {
				return err
			}
			panic("measurement exploded")
		})
	}()

	if knob != 1.0 {
		t.Errorf("mask not reverted across panic: knob = %v, want 1.0", knob)
	}
	if Running() != nil {
		t.Error("session still registered as running after panic")
	}
}
