//go:build tinygo && (cortexm || arm)

package app

import (
	"firmcore/sys/applet"
	"firmcore/sys/mpu"
)

func newPlatform(Config) applet.Platform {
	return applet.NewHardware(mpu.NewARMv7M(), AssetsArea)
}
