//go:build tinygo

package main

import (
	"context"

	"firmcore/app"
	"firmcore/hal"
)

func main() {
	h := hal.New()
	if err := app.Run(context.Background(), h, app.DefaultConfig()); err != nil {
		h.Logger().WriteLineString("firmcore: " + err.Error())
	}
	select {}
}
