package main

import "github.com/mpetrov/ideaharvest/cmd"

func main() {
	cmd.Execute()
}
