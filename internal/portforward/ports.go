// Copyright 2026 The AppForge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package portforward

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// ErrNoFreePort is returned when the allocator's whole range is in use.
var ErrNoFreePort = errors.New("no free port in range")

// Allocator hands out local ports from a fixed range. A claimed port stays
// unavailable until released, even if the listener backing it has gone away;
// the bind probe guards against ports taken by other processes.
type Allocator struct {
	start int
	end   int

	mu      sync.Mutex
	claimed map[int]struct{}
}

// NewAllocator creates an allocator over [start, end] inclusive.
func NewAllocator(start, end int) *Allocator {
	return &Allocator{
		start:   start,
		end:     end,
		claimed: make(map[int]struct{}),
	}
}

// Claim scans the range for a port that is both unclaimed and bindable, and
// claims it. Safe for concurrent use.
func (a *Allocator) Claim() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for port := a.start; port <= a.end; port++ {
		if _, taken := a.claimed[port]; taken {
			continue
		}
		if !bindable(port) {
			continue
		}
		a.claimed[port] = struct{}{}
		return port, nil
	}
	return 0, ErrNoFreePort
}

// Release returns a port to the pool. Releasing an unclaimed port is a no-op.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.claimed, port)
}

func bindable(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
