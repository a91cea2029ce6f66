package drpc

import (
	"sync"
)

// Process-wide table of running skeletons by bound address. This exists so
// single-process tests can find the skeleton behind an address; calls always
// travel over real sockets regardless.
var (
	regMu     sync.Mutex
	skeletons = make(map[string]*Skeleton)
)

func registerSkeleton(s *Skeleton) {
	regMu.Lock()
	skeletons[s.addr] = s
	regMu.Unlock()
}

func unregisterSkeleton(s *Skeleton) {
	regMu.Lock()
	if skeletons[s.addr] == s {
		delete(skeletons, s.addr)
	}
	regMu.Unlock()
}

// LookupSkeleton returns the running skeleton bound at addr in this
// process, or nil.
func LookupSkeleton(addr string) *Skeleton {
	regMu.Lock()
	defer regMu.Unlock()
	return skeletons[addr]
}
