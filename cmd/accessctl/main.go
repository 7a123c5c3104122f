package main

import "github.com/spokestack/accessctl/cmd/accessctl/cmd"

func main() {
	cmd.Execute()
}
