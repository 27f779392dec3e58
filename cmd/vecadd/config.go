package main

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Config of the vector addition build. The zero value of every field means its default.
//
// Example of a config file:
//
//	name   = "myadd"
//	output = "mod.c"
//
//	target {
//	  device = "cuda"
//	  host   = "rawc"
//	  attrs  = { arch = "sm_80", max_num_threads = 512 }
//	}
//
//	schedule {
//	  factor     = 64
//	  outer_axis = "blockIdx.x"
//	  inner_axis = "threadIdx.x"
//	}
type Config struct {
	Name     string          `hcl:"name,optional"`
	Output   string          `hcl:"output,optional"`
	Target   *TargetConfig   `hcl:"target,block"`
	Schedule *ScheduleConfig `hcl:"schedule,block"`
}

// TargetConfig selects the device and host target kinds. Attrs is an object of device target
// attributes.
type TargetConfig struct {
	Device string    `hcl:"device,optional"`
	Host   string    `hcl:"host,optional"`
	Attrs  cty.Value `hcl:"attrs,optional"`
}

// ScheduleConfig of the split of the single axis of C.
type ScheduleConfig struct {
	Factor    int    `hcl:"factor,optional"`
	OuterAxis string `hcl:"outer_axis,optional"`
	InnerAxis string `hcl:"inner_axis,optional"`
}

// DefaultConfig builds "myadd" for CUDA, with a "rawc" host, writing the host source to mod.c.
func DefaultConfig() *Config {
	return &Config{
		Name:   "myadd",
		Output: "mod.c",
		Target: &TargetConfig{
			Device: "cuda",
			Host:   "rawc",
		},
		Schedule: &ScheduleConfig{
			Factor:    64,
			OuterAxis: "blockIdx.x",
			InnerAxis: "threadIdx.x",
		},
	}
}

// LoadConfig parses the HCL file and merges it over DefaultConfig.
func LoadConfig(filePath string) (*Config, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(filePath)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "failed to parse config file %s", filePath)
	}
	var parsed Config
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &parsed); diags.HasErrors() {
		return nil, errors.Wrapf(diags, "failed to decode config file %s", filePath)
	}
	cfg := DefaultConfig()
	cfg.merge(&parsed)
	if cfg.Schedule.Factor <= 0 {
		return nil, errors.Errorf("config file %s: schedule factor must be positive, got %d", filePath, cfg.Schedule.Factor)
	}
	return cfg, nil
}

func (c *Config) merge(other *Config) {
	c.Name = valueOr(other.Name, c.Name)
	c.Output = valueOr(other.Output, c.Output)
	if t := other.Target; t != nil {
		c.Target.Device = valueOr(t.Device, c.Target.Device)
		c.Target.Host = valueOr(t.Host, c.Target.Host)
		c.Target.Attrs = t.Attrs
	}
	if s := other.Schedule; s != nil {
		if s.Factor != 0 {
			c.Schedule.Factor = s.Factor
		}
		c.Schedule.OuterAxis = valueOr(s.OuterAxis, c.Schedule.OuterAxis)
		c.Schedule.InnerAxis = valueOr(s.InnerAxis, c.Schedule.InnerAxis)
	}
}

func valueOr(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

// DeviceSpec returns the target string of the device, with the attributes as "-key=value" options.
func (t *TargetConfig) DeviceSpec() (string, error) {
	if t.Attrs.IsNull() {
		return t.Device, nil
	}
	attrsType := t.Attrs.Type()
	if !attrsType.IsObjectType() && !attrsType.IsMapType() {
		return "", errors.Errorf("target attrs must be an object, got %s", attrsType.FriendlyName())
	}
	parts := []string{t.Device}
	for it := t.Attrs.ElementIterator(); it.Next(); {
		key, value := it.Element()
		str, err := convert.Convert(value, cty.String)
		if err != nil || str.IsNull() {
			return "", errors.Errorf("target attribute %q must be a string, number or bool", key.AsString())
		}
		parts = append(parts, fmt.Sprintf("-%s=%s", key.AsString(), str.AsString()))
	}
	return strings.Join(parts, " "), nil
}
