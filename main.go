package main

import "github.com/gradus-incrementi/weather-station-data-collector/cmd"

func main() {
	cmd.Execute()
}
