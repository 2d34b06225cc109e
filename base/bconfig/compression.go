package bconfig

import (
	"fmt"

	"github.com/relex/framesink/util"
	"gopkg.in/yaml.v3"
)

// CompressionMode selects the compression applied to saved files
type CompressionMode string

// Supported compression modes
const (
	CompressionNone CompressionMode = "none"
	CompressionZstd CompressionMode = "zstd"
)

// FileSuffix returns the extra file extension appended to compressed files, including the dot
func (mode CompressionMode) FileSuffix() string {
	switch mode {
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

// UnmarshalYAML checks the mode name
func (mode *CompressionMode) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return util.NewYamlError(value, "compression must be a string")
	}
	switch CompressionMode(value.Value) {
	case "", CompressionNone:
		*mode = CompressionNone
	case CompressionZstd:
		*mode = CompressionZstd
	default:
		return util.NewYamlError(value, fmt.Sprintf("unsupported compression '%s'", value.Value))
	}
	return nil
}
