package main

import "github.com/readwell/concord/internal/cli"

func main() {
	cli.Execute()
}
