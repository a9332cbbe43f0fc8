package main

import "hf_downloader/internal/cli"

func main() {
	cli.Execute()
}
