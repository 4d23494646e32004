package main

import "github.com/chun1617/Kir-Manager-sub002/cmd"

func main() {
	cmd.Execute()
}
