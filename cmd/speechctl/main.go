package main

import "speech-to-pdf/cmd/speechctl/cmd"

func main() {
	cmd.Execute()
}
