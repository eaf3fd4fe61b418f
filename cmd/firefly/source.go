package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firefly/internal/rendering"
)

// sourceFlags selects contract source for deploy and query
type sourceFlags struct {
	term string
	set  map[string]string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.term, "term", "e", "", "contract source given inline")
	cmd.Flags().StringToStringVar(&f.set, "set", nil, "template values, rendered as string literals with {{ rho .name }}")
}

// load reads contract source from --term, a file argument or stdin ("-"), then renders
// it as a template when --set is given
func (f *sourceFlags) load(cmd *cobra.Command, args []string) (string, error) {
	var source string
	switch {
	case f.term != "" && len(args) > 0:
		return "", errors.New("give either --term or a source file, not both")
	case f.term != "":
		source = f.term
	case len(args) == 1 && args[0] == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		source = string(data)
	case len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read source: %w", err)
		}
		source = string(data)
	default:
		return "", errors.New("no contract source: pass a file, - for stdin, or --term")
	}

	if len(f.set) == 0 {
		return source, nil
	}

	tmpl, err := rendering.NewTemplate("source", source)
	if err != nil {
		return "", err
	}
	return tmpl.Execute(f.set)
}
