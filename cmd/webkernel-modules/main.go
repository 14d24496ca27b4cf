package main

import "webkernel-modules/internal/cli"

func main() {
	cli.Execute()
}
