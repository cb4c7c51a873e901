// Package engineconfig loads the session build-time configuration knobs of
// spec §6 from YAML, the format the teacher's deploy/service configuration
// uses throughout (gopkg.in/yaml.v3), and resolves them into an
// engine.Profile via the three named presets.
package engineconfig

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"streamkit.dev/core/internal/engine"
	"streamkit.dev/core/internal/graph"
	"streamkit.dev/core/internal/node"
)

// Knobs is the YAML-facing representation of spec §6's configuration
// table. Durations are expressed in milliseconds to match the spec's named
// units (node_input_capacity, shutdown_grace_ms, ...).
type Knobs struct {
	Profile                 string `yaml:"profile"`
	NodeInputCapacity       int    `yaml:"node_input_capacity"`
	PinDistributorCapacity  int    `yaml:"pin_distributor_capacity"`
	PacketBatchSize         int    `yaml:"packet_batch_size"`
	ShutdownGraceMS         int    `yaml:"shutdown_grace_ms"`
	MediaChannelCapacity    int    `yaml:"media_channel_capacity"`
	IOChannelCapacity       int    `yaml:"io_channel_capacity"`
}

// Parse decodes YAML bytes into Knobs, defaulting Profile to "balanced"
// when absent.
func Parse(raw []byte) (Knobs, error) {
	var k Knobs
	if err := yaml.Unmarshal(raw, &k); err != nil {
		return Knobs{}, fmt.Errorf("engineconfig: decode: %w", err)
	}
	if k.Profile == "" {
		k.Profile = "balanced"
	}
	return k, nil
}

// Resolve turns Knobs into an engine.Profile, starting from the named
// preset and overlaying the explicitly set node_input_capacity,
// pin_distributor_capacity, packet_batch_size and shutdown_grace_ms (a
// nonzero YAML value wins over the preset). MediaChannelCapacity and
// IOChannelCapacity are decoded but not applied to the profile.
func (k Knobs) Resolve() (engine.Profile, error) {
	base, err := Preset(k.Profile)
	if err != nil {
		return engine.Profile{}, err
	}
	if k.NodeInputCapacity > 0 {
		base.Graph.NodeInputCapacity = k.NodeInputCapacity
	}
	if k.PinDistributorCapacity > 0 {
		base.Graph.PinDistributorCapacity = k.PinDistributorCapacity
	}
	if k.PacketBatchSize > 0 {
		base.Task.BatchSize = k.PacketBatchSize
	}
	if k.ShutdownGraceMS > 0 {
		base.ShutdownGrace = time.Duration(k.ShutdownGraceMS) * time.Millisecond
	}
	return base, nil
}

// Preset returns the named profile (spec §6 "profile enum: balanced,
// low-latency, high-throughput").
func Preset(name string) (engine.Profile, error) {
	switch name {
	case "", "balanced":
		return engine.Profile{
			Graph:         graph.Config{NodeInputCapacity: 32, PinDistributorCapacity: 16},
			Task:          engine.TaskConfig{BatchSize: 32, Recovery: node.DefaultRecoveryPolicy()},
			ShutdownGrace: 5 * time.Second,
		}, nil
	case "low-latency":
		return engine.Profile{
			Graph:         graph.Config{NodeInputCapacity: 4, PinDistributorCapacity: 4},
			Task:          engine.TaskConfig{BatchSize: 4, Recovery: node.DefaultRecoveryPolicy()},
			ShutdownGrace: 2 * time.Second,
		}, nil
	case "high-throughput":
		return engine.Profile{
			Graph:         graph.Config{NodeInputCapacity: 256, PinDistributorCapacity: 128},
			Task:          engine.TaskConfig{BatchSize: 128, Recovery: node.DefaultRecoveryPolicy()},
			ShutdownGrace: 10 * time.Second,
		}, nil
	default:
		return engine.Profile{}, fmt.Errorf("engineconfig: unknown profile %q", name)
	}
}
