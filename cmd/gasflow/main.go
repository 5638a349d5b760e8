package main

import "gasflow/internal/cli"

func main() {
	cli.Execute()
}
