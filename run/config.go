package run

import (
	"fmt"

	"github.com/relex/framesink/base/bconfig"
	"github.com/relex/framesink/util"
	"gopkg.in/yaml.v3"
)

// Config defines the root of framesink config file
type Config struct {
	Anchors AnchorsConfig          `yaml:"anchors"`
	Streams []bconfig.StreamConfig `yaml:"streams"`
	Save    bconfig.SaveConfig     `yaml:"save"`
}

// AnchorsConfig defines the anchors section in config file
// The section is meant to provide anchors for other sections and doesn't need to be unmarshalled itself
type AnchorsConfig struct {
}

// LoadConfigFile loads config from the path and verifies all configurations
func LoadConfigFile(filepath string) (*Config, error) {
	cref := &Config{}
	if err := util.UnmarshalYamlFile(filepath, cref); err != nil {
		return nil, err
	}
	if err := cref.VerifyConfig(); err != nil {
		return nil, err
	}
	return cref, nil
}

// VerifyConfig checks all sections
func (cfg *Config) VerifyConfig() error {
	if len(cfg.Streams) == 0 {
		return fmt.Errorf("streams: no stream defined")
	}
	names := make([]string, 0, len(cfg.Streams))
	for i := range cfg.Streams {
		stream := &cfg.Streams[i]
		if err := stream.VerifyConfig(); err != nil {
			return fmt.Errorf("streams[%d]: %w", i, err)
		}
		if util.IndexOfString(names, stream.Name) != -1 {
			return fmt.Errorf("streams[%d]: duplicate name '%s'", i, stream.Name)
		}
		names = append(names, stream.Name)
	}
	if err := cfg.Save.VerifyConfig(); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// MarshalYAML provides custom marshalling to export readable document. The result is not reversible.
func (holder AnchorsConfig) MarshalYAML() (interface{}, error) {
	return []string(nil), nil
}

// UnmarshalYAML provides custom unmarshalling for the implementations of Config
func (holder *AnchorsConfig) UnmarshalYAML(value *yaml.Node) error {
	return nil
}
