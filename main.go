package main

import "github.com/pandamime100hp/iracingtelemotron/cmd"

func main() {
	cmd.Execute()
}
