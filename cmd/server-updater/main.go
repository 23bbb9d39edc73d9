package main

import "github.com/oshokin/server-updater/cmd/server-updater/cmd"

func main() {
	cmd.Execute()
}
