package main

import "github.com/samsaffron/tierchat/cmd"

func main() {
	cmd.Execute()
}
