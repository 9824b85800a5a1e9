package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "gridhall",
	Level: hclog.LevelFromString("INFO"),
})
