package main

import "mycelica/arbor/cmd"

func main() {
	cmd.Execute()
}
