package main

import "github.com/joelsson/mqttcore/cmd"

func main() {
	cmd.Execute()
}
