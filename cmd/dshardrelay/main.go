package main

import (
	"github.com/botlabs-gg/dshardrelay/common/run"
)

func main() {
	run.Init()
	run.Run()
}
