package app

import "firmcore/sys/mem"

// Memory map of the emulated device.
var (
	StackArea   = mem.Region{Start: 0x2000_0000, Size: 0x0001_0000}
	AppletStack = mem.Region{Start: 0x2000_8000, Size: 0x0000_4000}
	AppletCode  = mem.Region{Start: 0x0810_0000, Size: 0x0001_0000}
	AppletData  = mem.Region{Start: 0x2003_0000, Size: 0x0000_8000}
	AssetsArea  = mem.Region{Start: 0x0820_0000, Size: 0x0001_0000}
)

type Config struct {
	// Applet is the path of an applet library to run instead of the
	// built-in demo.
	Applet string
	// DemoDuration bounds the demo applet's input loop in ms.
	DemoDuration uint32

	LogLevel    string
	RSODForever bool
	IPC         bool
	DbgConsole  bool
	// MPU runs applets on the MPU platform. Boards with an MPU always do;
	// on the host the controller is simulated.
	MPU bool
}

// DefaultConfig is the configuration the board build runs with.
func DefaultConfig() Config {
	return Config{
		DemoDuration: 30_000,
		LogLevel:     "info",
		IPC:          true,
		DbgConsole:   true,
	}
}
