package main

import "github.com/glimmer-live/glimmer/internal/cli"

func main() {
	cli.Execute()
}
