package main

import "github.com/mcoot/relaygate/internal/cli"

func main() {
	cli.Execute()
}
