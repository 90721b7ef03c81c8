//go:build !consul

package store

import "testing"

// Without the consul build tag the constructor degrades to the memory
// backend so a misconfigured binary still starts.
func TestNewConsulStore_FallbackIsUsable(t *testing.T) {
	t.Parallel()

	st := NewConsulStore("127.0.0.1:8500")
	if err := st.Create(samplePeer("a", "10.8.0.2")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok, err := st.Get("a"); err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
}
