// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package proxy

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/vicb/flyXC-sub000/internal/config"
)

type fakeProvisioner struct {
	mu        sync.Mutex
	instances map[string]Instance
	created   []Instance
	deleted   []string
	createErr error
	deleteErr map[string]error
	// release gates Create when non-nil.
	release chan struct{}
	listed  chan struct{}
	block   chan struct{}
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{instances: map[string]Instance{}, deleteErr: map[string]error{}}
}

func (f *fakeProvisioner) Create(ctx context.Context, zone, name string, labels map[string]string) (string, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	inst := Instance{Name: name, Zone: zone, IP: "203.0.113.7"}
	f.instances[name] = inst
	f.created = append(f.created, inst)
	if f.createErr != nil {
		return "", f.createErr
	}
	return inst.IP, nil
}

func (f *fakeProvisioner) List(ctx context.Context, label string) ([]Instance, error) {
	if f.listed != nil {
		f.listed <- struct{}{}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Instance, 0, len(f.instances))
	for _, inst := range f.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeProvisioner) Delete(ctx context.Context, zone, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[name]; err != nil {
		return err
	}
	delete(f.instances, name)
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeProvisioner) add(name, zone string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instances[name] = Instance{Name: name, Zone: zone}
}

func testConfig() *config.ProxyConfig {
	return &config.ProxyConfig{
		Enabled: true,
		Project: "flyxc",
		Zones:   []string{"us-central1-a", "europe-west1-b"},
		Label:   "flyxc-relay",
		Port:    3128,
	}
}

func TestManagerLifecycle(t *testing.T) {
	t.Parallel()

	prov := newFakeProvisioner()
	prov.release = make(chan struct{})
	m := NewManager(testConfig(), prov)

	if m.State() != Idle {
		t.Fatalf("initial state = %v, want idle", m.State())
	}
	if m.IsReadyOrStart(context.Background()) {
		t.Fatal("IsReadyOrStart() = true on idle manager")
	}
	if m.State() != Starting {
		t.Fatalf("state = %v, want starting", m.State())
	}
	// Polling while starting does not provision twice.
	if m.IsReadyOrStart(context.Background()) {
		t.Fatal("IsReadyOrStart() = true while starting")
	}
	if m.Address() != "" {
		t.Errorf("Address() = %q while starting", m.Address())
	}

	close(prov.release)
	m.Wait()

	if !m.IsReadyOrStart(context.Background()) {
		t.Fatalf("IsReadyOrStart() = false after provisioning, state %v", m.State())
	}
	if got, want := m.Address(), "203.0.113.7:3128"; got != want {
		t.Errorf("Address() = %q, want %q", got, want)
	}
	if len(prov.created) != 1 {
		t.Fatalf("created %d instances, want 1", len(prov.created))
	}
	if prov.created[0].Zone != "us-central1-a" {
		t.Errorf("zone = %q, want first zone", prov.created[0].Zone)
	}

	m.DetachCurrent()
	if m.State() != Detached || m.Address() != "" {
		t.Fatalf("after detach: state %v address %q", m.State(), m.Address())
	}
	// Detach keeps the remote instance.
	if len(prov.deleted) != 0 {
		t.Errorf("detach deleted %v", prov.deleted)
	}

	// A detached proxy provisions again, in the next zone.
	m.IsReadyOrStart(context.Background())
	m.Wait()
	if len(prov.created) != 2 || prov.created[1].Zone != "europe-west1-b" {
		t.Fatalf("created = %+v, want second instance in second zone", prov.created)
	}
	if m.State() != Ready {
		t.Errorf("state = %v, want ready", m.State())
	}
}

func TestManagerProvisionFailure(t *testing.T) {
	t.Parallel()

	prov := newFakeProvisioner()
	prov.createErr = errors.New("quota exceeded")
	m := NewManager(testConfig(), prov)

	m.IsReadyOrStart(context.Background())
	m.Wait()

	if m.State() != Idle {
		t.Errorf("state = %v, want idle after failure", m.State())
	}
	if m.Address() != "" {
		t.Errorf("Address() = %q after failure", m.Address())
	}
}

func TestManagerDetachWhileStarting(t *testing.T) {
	t.Parallel()

	prov := newFakeProvisioner()
	prov.release = make(chan struct{})
	m := NewManager(testConfig(), prov)

	m.IsReadyOrStart(context.Background())
	m.DetachCurrent()
	close(prov.release)
	m.Wait()

	// The late instance is not referenced.
	if m.State() != Detached {
		t.Errorf("state = %v, want detached", m.State())
	}
	if err := m.KillZombies(context.Background()); err != nil {
		t.Fatalf("KillZombies() error = %v", err)
	}
	if len(prov.deleted) != 1 {
		t.Errorf("deleted = %v, want the late instance", prov.deleted)
	}
}

func TestKillZombies(t *testing.T) {
	t.Parallel()

	prov := newFakeProvisioner()
	m := NewManager(testConfig(), prov)
	m.IsReadyOrStart(context.Background())
	m.Wait()
	active := prov.created[0].Name

	prov.add("flyxc-relay-old1", "us-central1-a")
	prov.add("flyxc-relay-old2", "europe-west1-b")
	prov.add("flyxc-relay-stuck", "europe-west1-b")
	prov.deleteErr["flyxc-relay-old1"] = errors.New("permission denied")

	if err := m.KillZombies(context.Background()); err != nil {
		t.Fatalf("KillZombies() error = %v", err)
	}

	// A failed delete does not stop the pass.
	want := []string{"flyxc-relay-old2", "flyxc-relay-stuck"}
	sort.Strings(prov.deleted)
	if len(prov.deleted) != len(want) {
		t.Fatalf("deleted = %v, want %v", prov.deleted, want)
	}
	for i := range want {
		if prov.deleted[i] != want[i] {
			t.Errorf("deleted[%d] = %q, want %q", i, prov.deleted[i], want[i])
		}
	}
	if _, ok := prov.instances[active]; !ok {
		t.Error("active instance was deleted")
	}
	if m.Address() == "" {
		t.Error("active proxy lost its address")
	}
}

func TestKillZombiesSparesPending(t *testing.T) {
	t.Parallel()

	prov := newFakeProvisioner()
	prov.release = make(chan struct{})
	m := NewManager(testConfig(), prov)
	m.IsReadyOrStart(context.Background())

	m.mu.Lock()
	pending := m.pending
	m.mu.Unlock()
	prov.add(pending, "us-central1-a")
	prov.add("flyxc-relay-old", "us-central1-a")

	if err := m.KillZombies(context.Background()); err != nil {
		t.Fatalf("KillZombies() error = %v", err)
	}
	if len(prov.deleted) != 1 || prov.deleted[0] != "flyxc-relay-old" {
		t.Errorf("deleted = %v, want only the old instance", prov.deleted)
	}

	close(prov.release)
	m.Wait()
	if m.State() != Ready {
		t.Errorf("state = %v, want ready", m.State())
	}
}

func TestKillZombiesSingleFlight(t *testing.T) {
	t.Parallel()

	prov := newFakeProvisioner()
	prov.listed = make(chan struct{})
	prov.block = make(chan struct{})
	prov.add("flyxc-relay-old", "us-central1-a")
	m := NewManager(testConfig(), prov)

	done := make(chan error, 1)
	go func() { done <- m.KillZombies(context.Background()) }()
	<-prov.listed

	// A second pass returns immediately while the first one runs.
	second := make(chan error, 1)
	go func() { second <- m.KillZombies(context.Background()) }()
	select {
	case err := <-second:
		if err != nil {
			t.Errorf("concurrent KillZombies() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("concurrent KillZombies() blocked")
	}

	close(prov.block)
	if err := <-done; err != nil {
		t.Fatalf("KillZombies() error = %v", err)
	}
	if len(prov.deleted) != 1 {
		t.Errorf("deleted = %v, want one instance", prov.deleted)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{Idle, "idle"},
		{Starting, "starting"},
		{Ready, "ready"},
		{Detached, "detached"},
		{State(9), "state(9)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
