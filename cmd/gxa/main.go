package main

import "github.com/gxp-audit/gxa/internal/cli"

func main() {
	cli.Execute()
}
