package bridge

import (
	"fmt"

	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/config"
)

// Capability functions the resolved module must expose.
var capabilities = []string{
	"get_device_types",
	"get_device",
	"get_device_methods",
	"call_method",
}

// EmbeddedModuleName is the synthetic module name the bundled capability
// source is executed under.
const EmbeddedModuleName = "miio_interface_embedded"

// ModuleSource tells the host where the capability module comes from.
type ModuleSource interface {
	// Describe returns a short human-readable form for logs and errors.
	Describe() string

	ref() *moduleRef
}

// moduleRef is the wire form of a ModuleSource.
type moduleRef struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Dir    string `json:"dir,omitempty"`
	Source string `json:"source,omitempty"`
}

// PathSource imports Module after prepending Dir to sys.path.
type PathSource struct {
	Dir    string
	Module string
}

// Describe implements ModuleSource.
func (s PathSource) Describe() string {
	return fmt.Sprintf("%s from %s", s.Module, s.Dir)
}

func (s PathSource) ref() *moduleRef {
	return &moduleRef{Kind: config.ModePath, Name: s.Module, Dir: s.Dir}
}

// EmbeddedSource executes Source as a fresh module named Module.
type EmbeddedSource struct {
	Module string
	Source string
}

// Describe implements ModuleSource.
func (s EmbeddedSource) Describe() string {
	return fmt.Sprintf("%s (embedded, %d bytes)", s.Module, len(s.Source))
}

func (s EmbeddedSource) ref() *moduleRef {
	return &moduleRef{Kind: config.ModeEmbedded, Name: s.Module, Source: s.Source}
}

// DefaultEmbeddedSource returns the capability module bundled with the binary.
func DefaultEmbeddedSource() EmbeddedSource {
	return EmbeddedSource{Module: EmbeddedModuleName, Source: interfaceSource}
}

// SourceFromConfig picks the module source selected by cfg.Mode.
func SourceFromConfig(cfg config.BridgeConfig) (ModuleSource, error) {
	switch cfg.Mode {
	case config.ModePath:
		if cfg.SourcePath == "" {
			return nil, fmt.Errorf("%w: path mode needs a source directory", ErrBridge)
		}
		return PathSource{Dir: cfg.SourcePath, Module: cfg.Module}, nil
	case config.ModeEmbedded, "":
		return DefaultEmbeddedSource(), nil
	default:
		return nil, fmt.Errorf("%w: unknown module mode %q", ErrBridge, cfg.Mode)
	}
}
