// Command villagehub is a terminal client for the Tiny Village Hub marketplace.
package main

import "github.com/tinyvillage/villagehub/cmd/villagehub/cmd"

func main() {
	cmd.Execute()
}
