package main

import "github.com/encodeous/satmesh/cmd"

func main() {
	cmd.Execute()
}
