package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errClosed = errors.New("closed")

func TestConcurrentPop(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	got := make(chan int, 100)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, err := q.Pop(ctx)
				if err != nil {
					return
				}
				got <- v
			}
		}()
	}
	for i := 0; i < 100; i++ {
		if err := q.Push(i); err != nil {
			t.Fatal(err)
		}
	}
	for q.Len() > 0 {
		time.Sleep(time.Millisecond)
	}
	q.Close(errClosed)
	wg.Wait()
	if len(got) != 100 {
		t.Fatalf("popped %d of 100", len(got))
	}
	if err := q.Push(1); !errors.Is(err, errClosed) {
		t.Fatalf("expected push to closed queue to fail, got %v", err)
	}
}

func TestDrainAfterClose(t *testing.T) {
	q := New[string]()
	q.Push("a")
	q.Push("b")
	q.Close(errClosed)
	q.Close(errors.New("ignored"))

	ctx := context.Background()
	for _, want := range []string{"a", "b"} {
		v, err := q.Pop(ctx)
		if err != nil || v != want {
			t.Fatalf("got %q %v, want %q", v, err, want)
		}
	}
	if _, err := q.Pop(ctx); err != errClosed {
		t.Fatalf("expected first close error, got %v", err)
	}
}

func TestPopCancel(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestNotifyDrain(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	<-q.Notify()
	if items := q.Drain(); len(items) != 2 {
		t.Fatalf("drained %v", items)
	}
	if q.Len() != 0 {
		t.Fatal("queue should be empty")
	}
}
