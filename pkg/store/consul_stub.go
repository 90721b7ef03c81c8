//go:build !consul

package store

// NewConsulStore falls back to the in-memory store when the binary was
// built without the consul tag.
func NewConsulStore(addr string) PeerStore {
	log.Warningf("consul store requested (addr=%s) but this build has no consul support; peers will not survive restarts", addr)
	return NewMemoryStore()
}
