package main

import "github.com/marsender/cops/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
