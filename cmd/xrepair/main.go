package main

import "os"

func main() {
	commandInit()
	err := rootCmd.Execute()
	os.Exit(exitCodeFor(err))
}
