package main

import "github.com/kbuckham/zonewatch/internal/cli"

func main() {
	cli.Execute()
}
