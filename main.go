package main

import "github.com/ozRnDs/sort-and-choose-images/cmd"

func main() {
	cmd.Execute()
}
