package main

import "civicledger/civic-cli/cmd"

func main() {
	cmd.Execute()
}
