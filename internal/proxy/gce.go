// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package proxy

import (
	"context"
	"errors"
	"fmt"
	"path"

	compute "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/compute/apiv1/computepb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/proto"

	"github.com/vicb/flyXC-sub000/internal/config"
)

// startupScript turns a bare Debian image into an HTTP forward proxy.
const startupScript = `#!/bin/sh
apt-get update
apt-get install -y tinyproxy
sed -i "s/^Port .*/Port %d/" /etc/tinyproxy/tinyproxy.conf
sed -i "s/^Allow .*/#&/" /etc/tinyproxy/tinyproxy.conf
systemctl restart tinyproxy
`

// GCE provisions relay instances on Compute Engine.
type GCE struct {
	cfg    *config.ProxyConfig
	client *compute.InstancesClient
}

// NewGCE creates a Compute Engine provisioner using application default
// credentials unless opts say otherwise.
func NewGCE(ctx context.Context, cfg *config.ProxyConfig, opts ...option.ClientOption) (*GCE, error) {
	client, err := compute.NewInstancesRESTClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create compute client: %w", err)
	}
	return &GCE{cfg: cfg, client: client}, nil
}

// Close releases the underlying client.
func (g *GCE) Close() error {
	return g.client.Close()
}

// Create implements Provisioner.
func (g *GCE) Create(ctx context.Context, zone, name string, labels map[string]string) (string, error) {
	machineType := g.cfg.MachineType
	if machineType == "" {
		machineType = "e2-micro"
	}

	instance := &computepb.Instance{
		Name:        proto.String(name),
		MachineType: proto.String(fmt.Sprintf("zones/%s/machineTypes/%s", zone, machineType)),
		Labels:      labels,
		Disks: []*computepb.AttachedDisk{{
			AutoDelete: proto.Bool(true),
			Boot:       proto.Bool(true),
			InitializeParams: &computepb.AttachedDiskInitializeParams{
				SourceImage: proto.String(g.cfg.Image),
			},
		}},
		NetworkInterfaces: []*computepb.NetworkInterface{{
			AccessConfigs: []*computepb.AccessConfig{{
				Name: proto.String("External NAT"),
				Type: proto.String(computepb.AccessConfig_ONE_TO_ONE_NAT.String()),
			}},
		}},
		Metadata: &computepb.Metadata{
			Items: []*computepb.Items{{
				Key:   proto.String("startup-script"),
				Value: proto.String(fmt.Sprintf(startupScript, g.cfg.Port)),
			}},
		},
		Scheduling: &computepb.Scheduling{
			Preemptible: proto.Bool(true),
		},
	}

	op, err := g.client.Insert(ctx, &computepb.InsertInstanceRequest{
		Project:          g.cfg.Project,
		Zone:             zone,
		InstanceResource: instance,
	})
	if err != nil {
		return "", fmt.Errorf("insert instance %s: %w", name, err)
	}
	if err := op.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for instance %s: %w", name, err)
	}

	created, err := g.client.Get(ctx, &computepb.GetInstanceRequest{
		Project:  g.cfg.Project,
		Zone:     zone,
		Instance: name,
	})
	if err != nil {
		return "", fmt.Errorf("get instance %s: %w", name, err)
	}
	return natIP(created), nil
}

// List implements Provisioner.
func (g *GCE) List(ctx context.Context, label string) ([]Instance, error) {
	it := g.client.AggregatedList(ctx, &computepb.AggregatedListInstancesRequest{
		Project: g.cfg.Project,
		Filter:  proto.String(fmt.Sprintf("labels.%s = \"true\"", label)),
	})

	var out []Instance
	for {
		pair, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list instances: %w", err)
		}
		for _, inst := range pair.Value.GetInstances() {
			out = append(out, Instance{
				Name: inst.GetName(),
				// Zone is a full resource URL.
				Zone: path.Base(inst.GetZone()),
				IP:   natIP(inst),
			})
		}
	}
	return out, nil
}

// Delete implements Provisioner.
func (g *GCE) Delete(ctx context.Context, zone, name string) error {
	op, err := g.client.Delete(ctx, &computepb.DeleteInstanceRequest{
		Project:  g.cfg.Project,
		Zone:     zone,
		Instance: name,
	})
	if err != nil {
		return fmt.Errorf("delete instance %s: %w", name, err)
	}
	return op.Wait(ctx)
}

func natIP(inst *computepb.Instance) string {
	for _, nic := range inst.GetNetworkInterfaces() {
		for _, ac := range nic.GetAccessConfigs() {
			if ip := ac.GetNatIP(); ip != "" {
				return ip
			}
		}
	}
	return ""
}
