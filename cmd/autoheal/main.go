// autoheal explains failed integration grid jobs and applies guarded fixes.
package main

import "github.com/ppiankov/autoheal/internal/cli"

func main() {
	cli.Execute()
}
