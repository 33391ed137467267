package main

import "github.com/davarch/ci-dash/cmd/ci-dash/cli"

func main() {
	cli.Execute()
}
