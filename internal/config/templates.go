package config

import (
	"fmt"
	"os"
)

// Template returns a commented starter configuration.
func Template() string {
	return exampleTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(exampleTemplate), 0o600)
}

const exampleTemplate = `# own master address, QQ of prepared frames
address = "31"
separator = ";"

# optional templates file loaded before the catalog
# templates = "templates.csv"

# message files or directories; a directory's _templates.csv is loaded first
catalog = ["csv"]

log_level = "info"

# serve prometheus metrics while monitoring, empty disables
metrics_addr = ""
`
