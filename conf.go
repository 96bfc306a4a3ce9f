package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/viper"
)

var conf *Conf

type Conf struct {
	App struct {
		Version string `mapstructure:"version"`
		Title   string `mapstructure:"title"`
	} `mapstructure:"app"`
	Output struct {
		LogDir         string `mapstructure:"logDir"`
		OutputTerminal bool   `mapstructure:"outputTerminal"`
		Quality        int    `mapstructure:"quality"`
	} `mapstructure:"output"`
	Task struct {
		Dezoomer    string `mapstructure:"dezoomer"`
		Workers     int    `mapstructure:"workers"`
		Timedelay   int    `mapstructure:"timedelay"`
		Timeout     int    `mapstructure:"timeout"`
		MaxRequests int    `mapstructure:"maxRequests"`
	} `mapstructure:"task"`
	HTTP struct {
		Headers map[string]string `mapstructure:"headers"`
	} `mapstructure:"http"`
	Cache struct {
		Directory string `mapstructure:"directory"`
	} `mapstructure:"cache"`
	Select struct {
		Largest   bool `mapstructure:"largest"`
		MaxWidth  int  `mapstructure:"maxWidth"`
		MaxHeight int  `mapstructure:"maxHeight"`
	} `mapstructure:"select"`
}

// InitConf reads the optional config file, then applies the command line flags.
func InitConf(cfgFile string) {
	if cfgFile == "" {
		cfgFile = "conf.toml"
	}
	viper.SetConfigType("toml")
	viper.SetEnvPrefix("dezoomify")
	viper.AutomaticEnv() // read in environment variables that match
	if _, err := os.Stat(cfgFile); err == nil {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "read config file(%s) error, details: %s\n", viper.ConfigFileUsed(), err)
		}
	}

	viper.SetDefault("app.version", "v 0.1.0")
	viper.SetDefault("app.title", "dezoomify")
	viper.SetDefault("output.outputTerminal", true)
	viper.SetDefault("output.quality", 95)
	viper.SetDefault("task.dezoomer", "auto")
	viper.SetDefault("task.workers", runtime.NumCPU())
	viper.SetDefault("task.timedelay", 0)
	viper.SetDefault("task.timeout", 0)
	viper.SetDefault("task.maxRequests", 64)

	if err := viper.Unmarshal(&conf); err != nil {
		fmt.Fprintf(os.Stderr, "unable to parse the configuration: %s\n", err)
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "d":
			conf.Task.Dezoomer = dezoomerName
		case "n":
			conf.Task.Workers = numThreads
		case "largest":
			conf.Select.Largest = largest
		case "max-width":
			conf.Select.MaxWidth = maxWidth
		case "max-height":
			conf.Select.MaxHeight = maxHeight
		case "cache":
			conf.Cache.Directory = cacheDir
		}
	})
}
