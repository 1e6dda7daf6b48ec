package main

import (
	"time"

	"block-timestamp-logger/internal/cli"
)

func init() {
	// always use UTC
	time.Local = time.UTC
}

func main() {
	cli.Execute()
}
