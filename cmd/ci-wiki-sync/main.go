package main

import "github.com/davarch/ci-wiki-sync/cmd/ci-wiki-sync/cli"

func main() {
	cli.Execute()
}
