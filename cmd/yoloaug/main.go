package main

import "github.com/MeKo-Tech/yoloaug/cmd/yoloaug/cmd"

func main() {
	cmd.Execute()
}
