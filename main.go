package main

import "github.com/arcward/fellowship/cmd"

func main() {
	cmd.Execute()
}
