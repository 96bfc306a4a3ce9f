package main

import (
	"flag"
	"fmt"
	"os"
)

var (
	hf           bool
	configPath   string
	logLevel     string
	dezoomerName string
	largest      bool
	maxWidth     int
	maxHeight    int
	numThreads   int
	cacheDir     string

	inputURI string
	outFile  = "dezoomified.jpg"
)

func InitFlag() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&configPath, "c", "./conf/conf.toml", "set config `file`")
	flag.StringVar(&logLevel, "l", "info", "set log level")
	flag.StringVar(&dezoomerName, "d", "auto", "name of the `dezoomer` to use")
	flag.BoolVar(&largest, "largest", false, "if several zoom levels are available, select the largest one")
	flag.IntVar(&maxWidth, "max-width", 0, "select the largest zoom level whose width is below `pixels`")
	flag.IntVar(&maxHeight, "max-height", 0, "select the largest zoom level whose height is below `pixels`")
	flag.IntVar(&numThreads, "n", 0, "number of tiles downloaded at the same time (default: number of CPUs)")
	flag.StringVar(&cacheDir, "cache", "", "keep downloaded tiles in `directory` and reuse them")
	flag.Usage = usage
	flag.Parse()

	if hf {
		flag.Usage()
		os.Exit(0)
	}
	if flag.NArg() > 0 {
		inputURI = flag.Arg(0)
	}
	if flag.NArg() > 1 {
		outFile = flag.Arg(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `dezoomify version: dezoomify/v0.1.0
Usage: dezoomify [-h] [-c filename] [-l logLevel] [-d dezoomer] [-largest]
                 [-max-width w] [-max-height h] [-n workers] [-cache dir]
                 [input URL or file] [output file]
`)
	flag.PrintDefaults()
}
