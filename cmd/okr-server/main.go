// Package main is the entry point for the OKR assistant server.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/okr-assistant/cmd/okr-server/app"
)

func main() {
	app.NewApp().Run()
}
