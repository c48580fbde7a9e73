// Command smartmark runs the bookmark service: the HTTP API with OAuth
// sign-in and change streams, and the gRPC API.
package main

import (
	"fmt"
	"log"

	"github.com/patric-chuzhbe/smartmark/internal/app"
)

var (
	buildVersion = "N/A"
	buildDate    = "N/A"
	buildCommit  = "N/A"
)

func main() {
	fmt.Printf("Build version: %s\nBuild date: %s\nBuild commit: %s\n", buildVersion, buildDate, buildCommit)

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	theApp, err := app.New()
	if err != nil {
		return err
	}
	defer theApp.Close()

	return theApp.Run()
}
