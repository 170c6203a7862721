package main

import "github.com/eleven-am/voice-link/internal/bootstrap"

func main() {
	bootstrap.Run()
}
