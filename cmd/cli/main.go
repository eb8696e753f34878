package main

import (
	"github.com/roadrisk/roadrisk/pkg/cli"
)

func main() {
	cli.Execute()
}
