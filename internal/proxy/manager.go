// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

// Package proxy manages the relay proxy: a short lived cloud instance
// used as egress address while a vendor rate limits the primary address.
//
// The manager holds at most one active instance. Provisioning runs in the
// background; callers poll IsReadyOrStart until an address is known.
// Instances that are no longer referenced (detached, or left over by a
// failed provisioning or a previous process) are deleted by KillZombies.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/metrics"
)

// State is the lifecycle state of the relay proxy.
type State int32

const (
	// Idle means no instance is referenced.
	Idle State = iota
	// Starting means an instance was requested and its address is unknown.
	Starting
	// Ready means the address is known.
	Ready
	// Detached means the instance was released without being deleted.
	Detached
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Detached:
		return "detached"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// provisionTimeout bounds one provisioning, including the wait for the
// create operation.
const provisionTimeout = 5 * time.Minute

// Instance is a relay instance as seen by the provisioner.
type Instance struct {
	Name string
	Zone string
	IP   string
}

// Provisioner creates and deletes relay instances.
type Provisioner interface {
	// Create starts an instance, waits for it to run and returns its external IP.
	Create(ctx context.Context, zone, name string, labels map[string]string) (string, error)
	// List returns every instance carrying label.
	List(ctx context.Context, label string) ([]Instance, error)
	Delete(ctx context.Context, zone, name string) error
}

// Manager is the relay proxy lifecycle manager. It is safe for concurrent use.
type Manager struct {
	cfg  *config.ProxyConfig
	prov Provisioner
	log  zerolog.Logger

	mu      sync.Mutex
	state   State
	current *Instance
	// pending is the name of the instance being provisioned.
	pending string
	// gen invalidates an in-flight provisioning when the proxy is detached.
	gen      uint64
	nextZone int

	killing atomic.Bool
	wg      sync.WaitGroup
}

// NewManager creates an idle manager.
func NewManager(cfg *config.ProxyConfig, prov Provisioner) *Manager {
	m := &Manager{
		cfg:  cfg,
		prov: prov,
		log:  logging.WithComponent("proxy"),
	}
	metrics.ProxyState.Set(float64(Idle))
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Address returns "ip:port" of the ready proxy, or "".
func (m *Manager) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Ready || m.current == nil {
		return ""
	}
	return net.JoinHostPort(m.current.IP, strconv.Itoa(m.cfg.Port))
}

// IsReadyOrStart reports whether the proxy is ready. An idle or detached
// proxy starts provisioning in the background and reports false.
func (m *Manager) IsReadyOrStart(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Ready:
		return true
	case Starting:
		return false
	}
	if len(m.cfg.Zones) == 0 {
		m.log.Error().Msg("No zone configured for the relay proxy")
		return false
	}

	zone := m.cfg.Zones[m.nextZone%len(m.cfg.Zones)]
	m.nextZone++
	m.gen++
	m.pending = m.cfg.Label + "-" + uuid.New().String()[:8]
	m.setState(Starting)

	// Provisioning outlives the tick that asked for it.
	bg := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go m.provision(bg, m.gen, zone, m.pending)
	return false
}

// setState must be called with mu held.
func (m *Manager) setState(s State) {
	m.state = s
	metrics.ProxyState.Set(float64(s))
}

func (m *Manager) provision(ctx context.Context, gen uint64, zone, name string) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, provisionTimeout)
	defer cancel()

	start := time.Now()
	ip, err := m.prov.Create(ctx, zone, name, map[string]string{m.cfg.Label: "true"})
	if err == nil && ip == "" {
		err = errors.New("instance has no external IP")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state != Starting {
		// Detached while starting: the instance is left to KillZombies.
		m.log.Info().Str("instance", name).Msg("Relay proxy provisioned after detach, leaving it to cleanup")
		return
	}
	m.pending = ""
	if err != nil {
		m.current = nil
		m.setState(Idle)
		m.log.Error().Err(err).Str("zone", zone).Str("instance", name).Msg("Relay proxy provisioning failed")
		return
	}

	m.current = &Instance{Name: name, Zone: zone, IP: ip}
	m.setState(Ready)
	m.log.Info().
		Str("zone", zone).
		Str("instance", name).
		Str("ip", ip).
		Dur("duration", time.Since(start)).
		Msg("Relay proxy ready")
}

// DetachCurrent releases the current proxy without deleting it. The next
// KillZombies pass deletes the instance.
func (m *Manager) DetachCurrent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Idle || m.state == Detached {
		return
	}
	if m.current != nil {
		m.log.Info().Str("instance", m.current.Name).Msg("Relay proxy detached")
	}
	m.current = nil
	m.pending = ""
	m.gen++
	m.setState(Detached)
}

// KillZombies deletes every labeled instance except the active one. It is a
// no-op while another pass is running. Delete failures are logged and the
// pass continues with the remaining instances.
func (m *Manager) KillZombies(ctx context.Context) error {
	if !m.killing.CompareAndSwap(false, true) {
		return nil
	}
	defer m.killing.Store(false)

	instances, err := m.prov.List(ctx, m.cfg.Label)
	if err != nil {
		return fmt.Errorf("list relay instances: %w", err)
	}

	m.mu.Lock()
	keep := m.pending
	if m.current != nil {
		keep = m.current.Name
	}
	m.mu.Unlock()

	deleted := 0
	for _, inst := range instances {
		if inst.Name == keep {
			continue
		}
		if err := m.prov.Delete(ctx, inst.Zone, inst.Name); err != nil {
			m.log.Warn().Err(err).Str("instance", inst.Name).Str("zone", inst.Zone).Msg("Failed to delete relay zombie")
			continue
		}
		deleted++
	}
	if deleted > 0 {
		m.log.Info().Int("deleted", deleted).Msg("Relay zombies deleted")
	}
	return nil
}

// Wait blocks until background provisioning is done.
func (m *Manager) Wait() {
	m.wg.Wait()
}
