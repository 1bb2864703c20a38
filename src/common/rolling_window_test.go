package common

import "testing"

func TestRollingWindow(t *testing.T) {
	size := 3
	testWindow := NewRollingWindow(size)

	items := []string{"a", "b", "c"}
	for _, i := range items {
		_, evicted := testWindow.Add(i)
		if evicted {
			t.Fatalf("adding %q should not evict anything", i)
		}
	}

	dropped, evicted := testWindow.Add("d")
	if !evicted {
		t.Fatal("adding beyond the window size should evict")
	}
	if dropped.(string) != "a" {
		t.Fatalf("dropped item should be a, not %v", dropped)
	}

	window, tot := testWindow.Get()
	if tot != 4 {
		t.Fatalf("tot should be 4, not %d", tot)
	}
	expected := []string{"b", "c", "d"}
	for i, w := range window {
		if w.(string) != expected[i] {
			t.Fatalf("window[%d] should be %q, not %v", i, expected[i], w)
		}
	}
	if testWindow.Len() != size {
		t.Fatalf("Len should be %d, not %d", size, testWindow.Len())
	}
}
