// Command cachesim simulates the cache hierarchy of a single core.
package main

import "github.com/sarchlab/cachesim/cmd/cachesim/cmd"

func main() {
	cmd.Execute()
}
