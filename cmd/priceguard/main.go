package main

import "github.com/DimaJoyti/priceguard/cmd/priceguard/commands"

func main() {
	commands.Execute()
}
