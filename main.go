package main

import "github.com/fakeyudi/chemvis/cmd"

func main() {
	cmd.Execute()
}
