package main

import "tabmirror/cmd"

func main() {
	cmd.Execute()
}
