package common

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

type ContextHook struct{}

func (hook ContextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook ContextHook) Fire(entry *logrus.Entry) error {
	// Skip if already provided
	if _, ok := entry.Data["stck"]; ok {
		return nil
	}

	pc := make([]uintptr, 3)
	cnt := runtime.Callers(6, pc)

	for i := 0; i < cnt; i++ {
		fu := runtime.FuncForPC(pc[i] - 1)
		name := fu.Name()
		if !strings.Contains(name, "github.com/sirupsen/logrus") {
			file, line := fu.FileLine(pc[i] - 1)

			entry.Data["stck"] = callerString(name, file, line)
			break
		}
	}
	return nil
}

// STDLogProxy forwards output written through the standard log package (discordgo logs that way) to logrus
type STDLogProxy struct {
	Prefix string
}

func (p *STDLogProxy) Write(b []byte) (n int, err error) {
	n = len(b)

	pc := make([]uintptr, 3)
	runtime.Callers(4, pc)

	data := make(logrus.Fields)

	fu := runtime.FuncForPC(pc[0] - 1)
	if fu != nil {
		file, line := fu.FileLine(pc[0] - 1)
		data["stck"] = callerString(fu.Name(), file, line)
	}

	if p.Prefix != "" {
		data["p"] = p.Prefix
	}

	logLine := strings.TrimSuffix(string(b), "\n")
	logrus.WithFields(data).Info(logLine)

	return
}

func callerString(funcName, file string, line int) string {
	return filepath.Base(funcName) + ":" + filepath.Base(file) + ":" + strconv.Itoa(line)
}
