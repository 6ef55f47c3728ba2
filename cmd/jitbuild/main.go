package main

import "github.com/NVIDIA/jitbuild/pkg/cli"

func main() {
	cli.Execute()
}
