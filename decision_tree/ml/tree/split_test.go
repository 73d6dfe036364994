package tree

import (
	"sync"
	"testing"
)

func TestSplitOrdering(t *testing.T) {
	base := Split{Threshold: 0.5, Column: 3, Gain: 1.0, NLeft: 4}

	cases := []struct {
		name      string
		candidate Split
		wins      bool
	}{
		{"larger gain", Split{Threshold: 0.9, Column: 7, Gain: 2.0, NLeft: 1}, true},
		{"smaller gain", Split{Threshold: 0.1, Column: 0, Gain: 0.5, NLeft: 9}, false},
		{"same gain smaller column", Split{Threshold: 0.9, Column: 2, Gain: 1.0, NLeft: 1}, true},
		{"same gain larger column", Split{Threshold: 0.1, Column: 4, Gain: 1.0, NLeft: 9}, false},
		{"same column smaller threshold", Split{Threshold: 0.4, Column: 3, Gain: 1.0, NLeft: 1}, true},
		{"same column larger threshold", Split{Threshold: 0.6, Column: 3, Gain: 1.0, NLeft: 9}, false},
		{"same threshold larger nLeft", Split{Threshold: 0.5, Column: 3, Gain: 1.0, NLeft: 5}, true},
		{"same threshold smaller nLeft", Split{Threshold: 0.5, Column: 3, Gain: 1.0, NLeft: 3}, false},
	}
	for _, c := range cases {
		s := base
		s.Update(c.candidate)
		replaced := s == c.candidate
		if replaced != c.wins {
			t.Errorf("%s: replaced=%v want %v", c.name, replaced, c.wins)
		}
	}
}

func TestSplitSentinel(t *testing.T) {
	s := Split{}
	s.Init()
	if s.Valid() {
		t.Errorf("sentinel should be invalid: %+v", s)
	}
	// 哨兵和任何合法候选比都输
	s.Update(Split{Threshold: 0.5, Column: 0, Gain: 1e-300, NLeft: 1})
	if !s.Valid() {
		t.Errorf("tiny positive gain should beat the sentinel")
	}
}

func TestSplitUpdateConvergesRegardlessOfOrder(t *testing.T) {
	// 同一批候选不管什么顺序提交，最后都收敛到同一个
	candidates := []Split{
		{Threshold: 0.7, Column: 5, Gain: 1.0, NLeft: 3},
		{Threshold: 0.7, Column: 2, Gain: 1.0, NLeft: 3},
		{Threshold: 0.3, Column: 2, Gain: 1.0, NLeft: 6},
		{Threshold: 0.9, Column: 8, Gain: 0.8, NLeft: 1},
	}
	want := Split{Threshold: 0.3, Column: 2, Gain: 1.0, NLeft: 6}

	perms := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1}, {1, 3, 0, 2}}
	for _, perm := range perms {
		s := Split{}
		s.Init()
		for _, i := range perm {
			s.Update(candidates[i])
		}
		if s != want {
			t.Errorf("perm %v converged to %+v, want %+v", perm, s, want)
		}
	}

	// 并发提交也一样，外面套一把锁模拟builder里per-node的mutex
	var mu sync.Mutex
	s := Split{}
	s.Init()
	var wg sync.WaitGroup
	for _, c := range candidates {
		wg.Add(1)
		go func(c Split) {
			defer wg.Done()
			mu.Lock()
			s.Update(c)
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	if s != want {
		t.Errorf("concurrent updates converged to %+v, want %+v", s, want)
	}
}
