package main

import "ec-ph-doser/internal/cli"

func main() {
	cli.Execute()
}
