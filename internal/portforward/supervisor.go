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
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/appforge/appforge/internal/observability/logger"
)

// Forward is one supervised local access channel.
type Forward struct {
	DeploymentID string
	Namespace    string
	Service      string
	RemotePort   int
	LocalPort    int

	cmd *exec.Cmd
}

// Liveness reports whether a deployment should still have a forward. The
// supervisor's sweep drops forwards whose deployment is gone or no longer
// running.
type Liveness func(ctx context.Context, deploymentID string) bool

// Supervisor owns a table of kubectl port-forward child processes, one per
// deployment, and restarts them when they die while the deployment is still
// live.
type Supervisor struct {
	allocator   *Allocator
	kubectlPath string
	kubeconfig  string
	liveness    Liveness
	sweepEvery  time.Duration

	mu       sync.Mutex
	forwards map[string]*Forward
	notify   func(delta int64)

	cancel context.CancelFunc
	done   chan struct{}
}

// SetNotify registers a callback invoked with +1/-1 as forwards come and go.
// Must be called before Start.
func (s *Supervisor) SetNotify(fn func(delta int64)) {
	s.notify = fn
}

// NewSupervisor creates the supervisor. liveness may be nil, in which case
// forwards are only dropped explicitly.
func NewSupervisor(allocator *Allocator, kubectlPath, kubeconfig string, liveness Liveness, sweepEvery time.Duration) *Supervisor {
	if kubectlPath == "" {
		kubectlPath = "kubectl"
	}
	if sweepEvery <= 0 {
		sweepEvery = 15 * time.Second
	}
	return &Supervisor{
		allocator:   allocator,
		kubectlPath: kubectlPath,
		kubeconfig:  kubeconfig,
		liveness:    liveness,
		sweepEvery:  sweepEvery,
		forwards:    make(map[string]*Forward),
	}
}

// Start launches the sweep loop.
func (s *Supervisor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.sweepLoop(ctx)
}

// Stop terminates the sweep loop and every child process.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, fwd := range s.forwards {
		s.terminate(fwd)
		delete(s.forwards, id)
	}
}

// Ensure establishes a forward for the deployment, reusing the existing one
// when its process is still alive. Returns the local port.
func (s *Supervisor) Ensure(deploymentID, namespace, service string, port int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fwd, ok := s.forwards[deploymentID]; ok {
		if alive(fwd.cmd) && fwd.Service == service && fwd.RemotePort == port {
			return fwd.LocalPort, nil
		}
		s.terminate(fwd)
		delete(s.forwards, deploymentID)
	}

	localPort, err := s.allocator.Claim()
	if err != nil {
		return 0, err
	}
	fwd := &Forward{
		DeploymentID: deploymentID,
		Namespace:    namespace,
		Service:      service,
		RemotePort:   port,
		LocalPort:    localPort,
	}
	if err := s.launch(fwd); err != nil {
		s.allocator.Release(localPort)
		return 0, err
	}
	s.forwards[deploymentID] = fwd
	if s.notify != nil {
		s.notify(1)
	}
	return localPort, nil
}

// Drop tears down the deployment's forward if one exists.
func (s *Supervisor) Drop(deploymentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fwd, ok := s.forwards[deploymentID]
	if !ok {
		return
	}
	s.terminate(fwd)
	delete(s.forwards, deploymentID)
	if s.notify != nil {
		s.notify(-1)
	}
}

// Snapshot returns a copy of the current forward table for status surfaces.
func (s *Supervisor) Snapshot() []Forward {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Forward, 0, len(s.forwards))
	for _, fwd := range s.forwards {
		out = append(out, Forward{
			DeploymentID: fwd.DeploymentID,
			Namespace:    fwd.Namespace,
			Service:      fwd.Service,
			RemotePort:   fwd.RemotePort,
			LocalPort:    fwd.LocalPort,
		})
	}
	return out
}

func (s *Supervisor) launch(fwd *Forward) error {
	args := []string{
		"port-forward",
		"--namespace", fwd.Namespace,
		"svc/" + fwd.Service,
		fmt.Sprintf("%d:%d", fwd.LocalPort, fwd.RemotePort),
	}
	if s.kubeconfig != "" {
		args = append([]string{"--kubeconfig", s.kubeconfig}, args...)
	}
	cmd := exec.Command(s.kubectlPath, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start port-forward: %w", err)
	}
	// Reap the child so dead processes are observable via ProcessState.
	go func() { _ = cmd.Wait() }()
	fwd.cmd = cmd
	slog.Info("port-forward started",
		logger.DeploymentID(fwd.DeploymentID), logger.Namespace(fwd.Namespace),
		logger.LocalPort(fwd.LocalPort))
	return nil
}

func (s *Supervisor) terminate(fwd *Forward) {
	if fwd.cmd != nil && fwd.cmd.Process != nil {
		_ = fwd.cmd.Process.Kill()
	}
	s.allocator.Release(fwd.LocalPort)
}

func (s *Supervisor) sweepLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep drops forwards for deployments that are no longer live and restarts
// dead child processes for those that are.
func (s *Supervisor) sweep(ctx context.Context) {
	s.mu.Lock()
	forwards := make([]*Forward, 0, len(s.forwards))
	for _, fwd := range s.forwards {
		forwards = append(forwards, fwd)
	}
	s.mu.Unlock()

	for _, fwd := range forwards {
		if s.liveness != nil && !s.liveness(ctx, fwd.DeploymentID) {
			slog.Info("dropping port-forward for retired deployment",
				logger.DeploymentID(fwd.DeploymentID), logger.LocalPort(fwd.LocalPort))
			s.Drop(fwd.DeploymentID)
			continue
		}
		if alive(fwd.cmd) {
			continue
		}

		s.mu.Lock()
		if current, ok := s.forwards[fwd.DeploymentID]; ok && current == fwd {
			if err := s.launch(fwd); err != nil {
				slog.Warn("failed to restart port-forward",
					logger.DeploymentID(fwd.DeploymentID), logger.Error(err))
			}
		}
		s.mu.Unlock()
	}
}

func alive(cmd *exec.Cmd) bool {
	return cmd != nil && cmd.Process != nil && cmd.ProcessState == nil
}
