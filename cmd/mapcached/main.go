// Command mapcached is the tile cache server's executable entry point.
package main

import "github.com/mapcache-go/mapcache/internal/cmd"

func main() {
	cmd.Execute()
}
