package main

import "github.com/wearablelab/ticsync/cmd"

func main() {
	cmd.Execute()
}
