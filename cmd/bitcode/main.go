package main

import "github.com/rawbytedev/bitcode/cmd/bitcode/cmd"

func main() {
	cmd.Execute()
}
