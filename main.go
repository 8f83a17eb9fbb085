package main

import "github.com/frahmantamala/accessctl/cmd"

func main() {
	cmd.Execute()
}
