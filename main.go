package main

import "github.com/itsocialist/presentation-library-builder/cmd"

func main() {
	cmd.Execute()
}
