//go:build !(tinygo && (cortexm || arm))

package app

import (
	"firmcore/sys/applet"
	"firmcore/sys/mpu"
)

func newPlatform(cfg Config) applet.Platform {
	if cfg.MPU {
		return applet.NewHardware(mpu.NewSimulated(), AssetsArea)
	}
	return applet.NewEmulator()
}
