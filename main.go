package main

import (
	"fmt"
	"os"
)

func main() {
	// command line
	InitFlag()
	// signal hooks
	InitSafeExit()
	InitConf(configPath)
	InitLog()

	if err := InitTask(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("Done!")
}
