package main

import "github.com/echosec/advisory-pipeline/cmd"

func main() {
	cmd.Execute()
}
