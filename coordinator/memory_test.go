package coordinator

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/pkg/errors"
)

func TestJoin(t *testing.T) {
	cases := []struct {
		parts []string
		want  string
	}{
		{[]string{"/my-rpc", "Foo::1.0::groupA", "127.0.0.1:9999"}, "/my-rpc/Foo::1.0::groupA/127.0.0.1:9999"},
		{[]string{"my-rpc/", "/svc"}, "/my-rpc/svc"},
		{[]string{"", "/"}, "/"},
	}
	for _, tc := range cases {
		if got := Join(tc.parts...); got != tc.want {
			t.Errorf("Join(%q) = %q, want %q", tc.parts, got, tc.want)
		}
	}
}

func TestMemoryCreateChildrenDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.CreatePersistent(ctx, "/my-rpc/svc/127.0.0.1:8001"); err != nil {
		t.Fatal(err)
	}
	if err := m.CreatePersistent(ctx, "/my-rpc/svc/127.0.0.1:8002"); err != nil {
		t.Fatal(err)
	}
	// existing node is fine
	if err := m.CreatePersistent(ctx, "/my-rpc/svc/127.0.0.1:8002"); err != nil {
		t.Fatal(err)
	}

	children, err := m.Children(ctx, "/my-rpc/svc")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(children, []string{"127.0.0.1:8001", "127.0.0.1:8002"}) {
		t.Fatalf("unexpected children %v", children)
	}

	if ok, _ := m.Exists(ctx, "/my-rpc"); !ok {
		t.Fatal("parents should be created")
	}

	if err := m.Delete(ctx, "/my-rpc/svc/127.0.0.1:8001"); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, "/my-rpc/svc/127.0.0.1:8001"); !errors.Is(err, ErrNoNode) {
		t.Fatalf("expect ErrNoNode, got %v", err)
	}

	children, _ = m.Children(ctx, "/my-rpc/svc")
	if !reflect.DeepEqual(children, []string{"127.0.0.1:8002"}) {
		t.Fatalf("unexpected children after delete %v", children)
	}

	missing, err := m.Children(ctx, "/my-rpc/none")
	if err != nil || len(missing) != 0 {
		t.Fatalf("missing path should have no children, got %v %v", missing, err)
	}
}

func TestMemoryWatchChildren(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var mu sync.Mutex
	var seen [][]string
	err := m.WatchChildren(ctx, "/my-rpc/svc", func(path string, children []string) {
		mu.Lock()
		defer mu.Unlock()
		if path != "/my-rpc/svc" {
			t.Errorf("unexpected path %s", path)
		}
		seen = append(seen, children)
	})
	if err != nil {
		t.Fatal(err)
	}

	m.CreatePersistent(ctx, "/my-rpc/svc/a:1")
	m.CreatePersistent(ctx, "/my-rpc/svc/b:2")
	m.Delete(ctx, "/my-rpc/svc/a:1")

	mu.Lock()
	defer mu.Unlock()
	want := [][]string{{}, {"a:1"}, {"a:1", "b:2"}, {"b:2"}}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("expect notifications %v, got %v", want, seen)
	}
}

func TestMemoryInjectError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")

	m.InjectError(OpCreate, "/a/b", boom)
	if err := m.CreatePersistent(ctx, "/a/b"); err != boom {
		t.Fatalf("expect injected error, got %v", err)
	}
	m.InjectError(OpCreate, "/a/b", nil)
	if err := m.CreatePersistent(ctx, "/a/b"); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory()
	m.Close()
	if _, err := m.Children(context.Background(), "/"); err != ErrClosed {
		t.Fatalf("expect ErrClosed, got %v", err)
	}
}

func TestRetryPolicy(t *testing.T) {
	p := RetryPolicy{BaseDelay: 0, MaxRetries: 3}
	transient := errors.New("transient")

	calls := 0
	err := p.Do(context.Background(), func(err error) bool { return err == transient }, func() error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expect success on third attempt, got %v after %d calls", err, calls)
	}

	calls = 0
	fatal := errors.New("fatal")
	err = p.Do(context.Background(), func(err error) bool { return err == transient }, func() error {
		calls++
		return fatal
	})
	if err != fatal || calls != 1 {
		t.Fatalf("non-retryable error must not be retried, got %v after %d calls", err, calls)
	}

	calls = 0
	err = p.Do(context.Background(), func(error) bool { return true }, func() error {
		calls++
		return transient
	})
	if err != transient || calls != 4 {
		t.Fatalf("expect 1 attempt + 3 retries, got %d calls", calls)
	}
}
