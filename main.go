package main

import "github.com/sw33tLie/idwatch/cmd"

func main() {
	cmd.Execute()
}
