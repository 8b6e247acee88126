package shm

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/sanonone/grl/pkg/graph"
)

func stores(t *testing.T) map[string]*Store {
	t.Helper()
	anon, err := NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	file, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		anon.Flush()
		file.Flush()
	})
	return map[string]*Store{"anonymous": anon, "file": file}
}

func TestAllocateAndLookup(t *testing.T) {
	for kind, s := range stores(t) {
		t.Run(kind, func(t *testing.T) {
			b, err := s.Allocate([]int{11, 4}, Float32, "emb")
			if err != nil {
				t.Fatal(err)
			}
			data := b.Float32()
			if len(data) != 44 {
				t.Fatalf("len = %d, want 44", len(data))
			}
			for _, v := range data {
				if v != 0 {
					t.Fatal("buffer is not zero-initialised")
				}
			}
			data[5] = 3.5

			got, err := s.Lookup("emb")
			if err != nil {
				t.Fatal(err)
			}
			if got.Float32()[5] != 3.5 {
				t.Error("lookup does not share memory with the allocated buffer")
			}
			m := got.Matrix()
			if m.Rows != 11 || m.Cols != 4 || m.Row(1)[1] != 3.5 {
				t.Errorf("matrix view %dx%d row(1)=%v", m.Rows, m.Cols, m.Row(1))
			}

			if _, err := s.Allocate([]int{1}, Float32, "emb"); !errors.Is(err, ErrExists) {
				t.Errorf("got %v, want ErrExists", err)
			}
			if _, err := s.Lookup("missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("got %v, want ErrNotFound", err)
			}
			if _, err := s.Allocate([]int{1}, Float32, "a/b"); !errors.Is(err, ErrInvalidName) {
				t.Errorf("got %v, want ErrInvalidName", err)
			}
			if _, err := s.Allocate(nil, Float32, "noshape"); !errors.Is(err, ErrInvalidShape) {
				t.Errorf("got %v, want ErrInvalidShape", err)
			}
		})
	}
}

func TestGeneratedNamesAndListing(t *testing.T) {
	s := stores(t)["anonymous"]
	a, err := s.Allocate([]int{2}, Uint32, "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Allocate([]int{2}, Uint32, "")
	if err != nil {
		t.Fatal(err)
	}
	if a.Name() == b.Name() {
		t.Fatal("generated names collide")
	}
	if _, err := s.Allocate([]int{3}, Uint64, "zzz"); err != nil {
		t.Fatal(err)
	}

	names := s.List()
	if len(names) != 3 || !slices.IsSorted(names) {
		t.Errorf("List = %v", names)
	}

	if err := s.Remove(a.Name()); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(a.Name()); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if count, bytes := s.Stats(); count != 2 || bytes != 8+24 {
		t.Errorf("Stats = %d, %d", count, bytes)
	}

	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(s.List()) != 0 {
		t.Error("Flush left buffers behind")
	}
}

func TestAllocateGaussian(t *testing.T) {
	s := stores(t)["anonymous"]
	const rows, dim = 2000, 8
	b, err := s.AllocateGaussian([]int{rows, dim}, "g", rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatal(err)
	}
	var sum, sq float64
	for _, v := range b.Float32() {
		sum += float64(v)
		sq += float64(v) * float64(v)
	}
	n := float64(rows * dim)
	mean := sum / n
	std := math.Sqrt(sq/n - mean*mean)
	if math.Abs(mean) > 0.01 || math.Abs(std-1.0/dim) > 0.01 {
		t.Errorf("mean %f std %f, want 0 and %f", mean, std, 1.0/dim)
	}
}

func TestFileStoreAttach(t *testing.T) {
	dir := t.TempDir()
	owner, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer owner.Flush()

	b, err := owner.Allocate([]int{3, 2}, Float32, "shared")
	if err != nil {
		t.Fatal(err)
	}

	// A second store on the same directory stands in for another process.
	other, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()

	att, err := other.Lookup("shared")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(att.Shape(), []int{3, 2}) || att.DType() != Float32 {
		t.Fatalf("attached shape %v dtype %s", att.Shape(), att.DType())
	}

	att.Float32()[4] = 7
	if b.Float32()[4] != 7 {
		t.Error("write through attached mapping is not visible to the owner")
	}
	b.Float32()[0] = -1
	if att.Float32()[0] != -1 {
		t.Error("write through owner mapping is not visible to the attached store")
	}
}

func TestRegisterGraph(t *testing.T) {
	for kind, s := range stores(t) {
		t.Run(kind, func(t *testing.T) {
			g := graph.Erdos(30, 0.2, 9)
			name, err := s.RegisterGraph(g)
			if err != nil {
				t.Fatal(err)
			}
			before := len(s.List())

			again, err := s.RegisterGraph(g.Clone())
			if err != nil {
				t.Fatal(err)
			}
			if again != name {
				t.Errorf("re-registration returned %q, want %q", again, name)
			}
			if len(s.List()) != before {
				t.Error("re-registration copied the graph again")
			}

			shared, err := s.LookupGraph(name)
			if err != nil {
				t.Fatal(err)
			}
			if !shared.Equal(g) {
				t.Error("shared graph differs from the original")
			}

			if err := s.RemoveGraph(name); err != nil {
				t.Fatal(err)
			}
			if _, err := s.LookupGraph(name); !errors.Is(err, ErrNotFound) {
				t.Errorf("got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestConcurrentLookup(t *testing.T) {
	s := stores(t)["anonymous"]
	if _, err := s.Allocate([]int{64}, Float32, "hot"); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := s.Lookup("hot"); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
