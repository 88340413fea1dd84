// The main package for the elm-starter executable.
package main

import (
	"github.com/JakeFAU/elm-starter/cmd"
)

func main() {
	cmd.Execute()
}
