// Package detector handles target architecture detection.
package detector

import (
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sgn/internal/arch"
	"github.com/retroenv/sgn/internal/options"
	"github.com/xyproto/env/v2"
)

// EnvArch is the environment variable that sets the default architecture.
const EnvArch = "SGN_ARCH"

// Detector handles architecture detection from options and environment.
type Detector struct {
	logger *log.Logger
}

// New creates a new architecture detector.
func New(logger *log.Logger) *Detector {
	return &Detector{
		logger: logger,
	}
}

// Detect determines the target architecture. An architecture given by
// option is used first, otherwise the environment default, otherwise x32.
func (d *Detector) Detect(opts options.Program) (arch.Arch, error) {
	if opts.Arch != "" {
		return arch.Parse(opts.Arch)
	}

	name := env.Str(EnvArch, arch.X32.String())
	a, err := arch.Parse(name)
	if err != nil {
		return 0, err
	}
	d.logger.Debug("Using default architecture",
		log.String("arch", a.String()),
		log.String("source", EnvArch))
	return a, nil
}
