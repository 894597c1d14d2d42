// The main package for the snapvault executable.
package main

import "github.com/snapvault/snapvault/cmd"

func main() {
	cmd.Execute()
}
