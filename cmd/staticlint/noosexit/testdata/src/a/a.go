package main

import "os"

func main() {
	defer println("closing storage")

	if len(os.Args) > 3 {
		os.Exit(2) // want "avoid using os.Exit in main.main"
	}

	go func() {
		os.Exit(1)
	}()
}

func usage() {
	os.Exit(1)
}
