package main

import "habitcoach/cmd"

func main() {
	cmd.Execute()
}
