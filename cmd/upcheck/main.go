package main

import "github.com/upcheck/upcheck/cmd/upcheck/cmd"

func main() {
	cmd.Execute()
}
