package main

import system "os"

func main() {
	system.Exit(0) // want "avoid using os.Exit in main.main"
}
