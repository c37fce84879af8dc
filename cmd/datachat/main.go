package main

import "github.com/KaramelBytes/datachat/cmd"

func main() {
	cmd.Execute()
}
