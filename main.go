package main

import "github.com/KaramelBytes/sheetqa/cmd"

func main() {
	cmd.Execute()
}
