package main

import "github.com/canopy-network/mocknet/cmd/cli"

func main() {
	cli.Execute()
}
