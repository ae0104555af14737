package main

import "linksnap/cmd"

func main() {
	cmd.Execute()
}
