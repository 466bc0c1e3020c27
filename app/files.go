package app

import (
	"github.com/hashicorp/go-hclog"

	"firmcore/hal"
	"firmcore/internal/flashfs"
)

// mountFiles mounts the flash filesystem, formatting blank flash. It
// returns nil when the board has no usable flash.
func mountFiles(flash hal.Flash, log hclog.Logger) Files {
	if flash == nil {
		return nil
	}
	dev, err := flashfs.NewDevice(flash)
	if err != nil {
		log.Warn("no flash filesystem", "error", err)
		return nil
	}
	fs := flashfs.New(dev)
	if err := fs.MountOrFormat(); err != nil {
		log.Warn("no flash filesystem", "error", err)
		return nil
	}
	log.Debug("flash filesystem mounted", "size", flash.SizeBytes())
	return fs
}
