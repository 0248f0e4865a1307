package main

import "github.com/sokofresh/mpesa-checkout/cmd"

func main() {
	cmd.Execute()
}
