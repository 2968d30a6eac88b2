package logutil

import (
	"os"

	logging "github.com/op/go-logging"
)

func InitLogger(name, level string) *logging.Logger {
	format := "%{color}%{level} %{time:Jan 2 15:04:05} %{shortfunc} %{color:reset}▶ %{message}"
	backend := logging.NewLogBackend(os.Stderr, "", -1)
	leveled := logging.AddModuleLevel(backend)

	lvl, err := logging.LogLevel(level)
	if err != nil {
		lvl = logging.INFO
	}
	leveled.SetLevel(lvl, "")

	logging.SetBackend(leveled)
	logging.SetFormatter(logging.MustStringFormatter(format))
	return logging.MustGetLogger(name)
}
