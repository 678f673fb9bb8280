package run

import (
	"fmt"
	"time"

	"github.com/botlabs-gg/dshardrelay/common/config"
	"github.com/jedib0t/go-pretty/table"
)

// GenConfigDocs prints every config option with its env key and default
func GenConfigDocs() {
	tb := table.NewWriter()
	tb.AppendHeader(table.Row{"env", "type", "default", "description"})

	for _, opt := range config.Options() {
		typeStr, def := describeDefault(opt.DefaultValue)
		tb.AppendRow(table.Row{opt.EnvKey(), typeStr, def, opt.Description})
	}

	fmt.Println(tb.Render())
}

func describeDefault(v interface{}) (typeStr string, def string) {
	switch t := v.(type) {
	case string:
		return "string", t
	case bool:
		return "true/false", fmt.Sprint(t)
	case time.Duration:
		return "duration", t.String()
	case int, int64, uint, float64:
		return "number", fmt.Sprint(t)
	}

	return "", ""
}
