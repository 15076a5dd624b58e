package core

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"
)

func TestSamplePool(t *testing.T) {
	pool := NewSamplePool(10)

	if pool.Cap() != 10 {
		t.Errorf("Expected capacity 10, got %d", pool.Cap())
	}
	if pool.Available() != 0 {
		t.Errorf("Empty pool should have 0 available, got %d", pool.Available())
	}

	if !pool.Push([]byte{1, 2, 3, 4, 5}) {
		t.Fatal("Expected push of 5 bytes to succeed")
	}
	if pool.Available() != 5 || pool.Free() != 5 {
		t.Errorf("Expected 5 available and 5 free, got %d and %d", pool.Available(), pool.Free())
	}

	readBuf := make([]byte, 3)
	if n := pool.Read(readBuf); n != 3 {
		t.Errorf("Expected to read 3 bytes, read %d", n)
	}
	if readBuf[0] != 1 || readBuf[1] != 2 || readBuf[2] != 3 {
		t.Errorf("Read data mismatch: got %v", readBuf)
	}

	// The whole capacity is usable.
	pool.Reset()
	if !pool.Push(make([]byte, 10)) {
		t.Error("Expected a push of exactly the capacity to succeed")
	}
	if pool.Push([]byte{1}) {
		t.Error("Expected push into a full pool to fail")
	}
}

func TestSamplePoolPushIsAllOrNothing(t *testing.T) {
	pool := NewSamplePool(8)
	pool.Push([]byte{1, 2, 3, 4, 5, 6})

	if pool.Push([]byte{7, 8, 9}) {
		t.Fatal("Expected a frame that does not fit to be rejected")
	}
	if pool.Available() != 6 {
		t.Errorf("Rejected frame must not be partially stored, got %d available", pool.Available())
	}
}

func TestSamplePoolWrapAround(t *testing.T) {
	pool := NewSamplePool(4)

	pool.Push([]byte{1, 2, 3, 4})
	pool.Read(make([]byte, 2))

	if !pool.Push([]byte{5, 6}) {
		t.Fatal("Expected wrapped push to succeed")
	}

	all := make([]byte, 8)
	n := pool.Read(all)
	if n != 4 {
		t.Errorf("Expected to read 4 bytes, read %d", n)
	}
	if all[0] != 3 || all[1] != 4 || all[2] != 5 || all[3] != 6 {
		t.Errorf("Wrap-around data mismatch: got %v", all[:n])
	}
}

func TestSamplePoolConcurrentProducer(t *testing.T) {
	const frames = 200
	pool := NewSamplePool(64)
	frame := make([]byte, 16)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < frames; {
			if pool.Push(frame) {
				i++
			}
		}
	}()

	total := 0
	buf := make([]byte, 24)
	for total < frames*len(frame) {
		total += pool.Read(buf)
	}
	wg.Wait()

	if total != frames*len(frame) {
		t.Errorf("Expected %d bytes through the pool, got %d", frames*len(frame), total)
	}
}

func TestSamplePoolFrameSplitAtEnd(t *testing.T) {
	// An odd capacity makes every frame land on a different offset.
	pool := NewSamplePool(DefaultPoolBytes + 1)
	frame := make([]byte, DefaultTransferBytes)
	out := make([]byte, DefaultTransferBytes)

	for i := 0; i < 64; i++ {
		for j := range frame {
			frame[j] = byte(i + j)
		}
		if !pool.Push(frame) {
			t.Fatalf("Push %d failed with %d bytes free", i, pool.Free())
		}
		if n := pool.Read(out); n != len(out) {
			t.Fatalf("Read %d returned %d bytes", i, n)
		}
		if !bytes.Equal(out, frame) {
			t.Fatalf("Frame %d corrupted across the ring boundary", i)
		}
	}
	if pool.Available() != 0 || pool.Free() != pool.Cap() {
		t.Errorf("Expected an empty pool, got %d available and %d free", pool.Available(), pool.Free())
	}
}

func TestSamplePoolMatchesQueue(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	pool := NewSamplePool(37)
	var model []byte
	next := byte(0)

	for step := 0; step < 5000; step++ {
		if rng.Intn(2) == 0 {
			frame := make([]byte, 1+rng.Intn(20))
			for i := range frame {
				frame[i] = next
				next++
			}
			fits := len(frame) <= pool.Cap()-len(model)
			if got := pool.Push(frame); got != fits {
				t.Fatalf("Step %d: Push of %d bytes returned %v with %d queued", step, len(frame), got, len(model))
			}
			if fits {
				model = append(model, frame...)
			} else {
				next -= byte(len(frame))
			}
		} else {
			buf := make([]byte, rng.Intn(25))
			n := pool.Read(buf)
			want := len(buf)
			if want > len(model) {
				want = len(model)
			}
			if n != want || !bytes.Equal(buf[:n], model[:want]) {
				t.Fatalf("Step %d: read %v, expected %v", step, buf[:n], model[:want])
			}
			model = model[want:]
		}
		if pool.Available() != len(model) {
			t.Fatalf("Step %d: expected %d available, got %d", step, len(model), pool.Available())
		}
	}
}
