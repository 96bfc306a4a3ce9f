package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitConf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.toml")
	doc := `
[output]
quality = 80

[task]
workers = 3
maxRequests = 5

[http.headers]
Referer = "https://museum.example/"

[select]
maxWidth = 2000
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	InitConf(path)

	if conf.Output.Quality != 80 || conf.Task.Workers != 3 || conf.Task.MaxRequests != 5 {
		t.Errorf("values from file not read: %+v %+v", conf.Output, conf.Task)
	}
	if conf.Select.MaxWidth != 2000 {
		t.Errorf("select: %+v", conf.Select)
	}
	if conf.Task.Dezoomer != "auto" || !conf.Output.OutputTerminal {
		t.Errorf("defaults not applied: %+v %+v", conf.Task, conf.Output)
	}
	// viper folds keys to lower case, the transport canonicalizes them again
	if conf.HTTP.Headers["referer"] != "https://museum.example/" {
		t.Errorf("headers: %v", conf.HTTP.Headers)
	}
}
