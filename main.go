package main

import "github.com/Yates-Labs/saga/cmd"

func main() {
	cmd.Execute()
}
