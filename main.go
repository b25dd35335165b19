package main

import "github.com/jetstack/securechannel/cmd"

func main() {
	cmd.Execute()
}
