package bloom

import (
	"sync"
	"testing"
)

func TestSizer_CommonCases(t *testing.T) {
	s := NewSizer()

	// n=1, p=1% → m≈10, k≈7
	m, k := s.Size(1, 0.01)
	if m < 10 || k != 7 {
		t.Fatalf("n=1,p=0.01: got m=%d k=%d; want m>=10 k=7", m, k)
	}

	// n=1e6, p=1% → m≈9.585e6 bits, k≈7
	m, k = s.Size(1_000_000, 0.01)
	if m < 9_500_000 || m > 9_700_000 {
		t.Fatalf("n=1e6,p=0.01: unexpected m=%d (expected around 9.6e6)", m)
	}
	if k != 7 {
		t.Fatalf("n=1e6,p=0.01: k=%d; want 7", k)
	}

	m, k = s.Size(10_000, 0.5)
	if k != 1 || m == 0 {
		t.Fatalf("p=0.5: got m=%d k=%d; want m>=1 k=1", m, k)
	}
}

func TestSizer_ClampingAndDefaults(t *testing.T) {
	s := NewSizer()

	m, k := s.Size(0, 0)
	if m == 0 || k == 0 {
		t.Fatalf("n=0,p=0: expected m>=1 and k>=1; got m=%d k=%d", m, k)
	}
	m2, k2 := s.Size(1, 0.01)
	if m != m2 || k != k2 {
		t.Fatalf("n=0,p=0 should equal n=1,p=0.01: got (%d,%d) vs (%d,%d)", m, k, m2, k2)
	}

	if m, k := s.Size(100, 1.0); m == 0 || k == 0 {
		t.Fatalf("p>=1 default: expected m>=1 and k>=1; got m=%d k=%d", m, k)
	}
}

func TestFilter_AddAndTest(t *testing.T) {
	f := NewFactory().New(32, 0.05)

	exact := []byte{'e', 0xca, 0xfe}
	prefix := []byte{'p', 0xca, 0xfe}

	if f.MightContain(exact) {
		t.Fatalf("unexpected positive before add")
	}
	f.Add(exact)
	if !f.MightContain(exact) {
		t.Fatalf("expected maybe after add")
	}
	// probabilistic; only exercise the path
	_ = f.MightContain(prefix)
}

func TestFilter_ConcurrentReadsDuringWrites(t *testing.T) {
	f := NewFactory().New(256, 0.01)

	var wg sync.WaitGroup
	done := make(chan struct{})
	keys := [][]byte{{0x01}, {0x02}, {0x03}}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10_000; i++ {
			f.Add(keys[i%3])
		}
		close(done)
	}()

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = f.MightContain([]byte{0xff})
				}
			}
		}()
	}
	wg.Wait()

	for _, k := range keys {
		if !f.MightContain(k) {
			t.Fatalf("expected key %x present after writes", k)
		}
	}
}
