package main

import "github.com/heapscope/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
