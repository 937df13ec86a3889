package main

import (
	"github.com/gantryhq/gantry/pkg/cli/cmd"
)

func main() {
	cmd.Execute()
}
