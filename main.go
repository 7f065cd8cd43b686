package main

import "tempnotes/pkg/cli"

func main() {
	cli.Execute()
}
