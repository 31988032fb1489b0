package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/procsync/internal/catalog"
	"github.com/roach88/procsync/internal/procedure"
)

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List discovered containers and scripts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			containers, err := e.catalog.Discover()
			if err != nil {
				return runError(err)
			}
			containers, err = selectContainers(containers, opts.Containers)
			if err != nil {
				return err
			}

			if e.out.Structured() {
				return e.out.Success(containers)
			}
			w := e.out.Writer
			for _, c := range containers {
				fmt.Fprintf(w, "%s (%d)\n", e.out.paint(color.Bold, c.Name), len(c.Scripts))
				if len(c.Scripts) > 0 {
					fmt.Fprintf(w, "  %s\n", strings.Join(c.Scripts, "\n  "))
				}
			}
			return nil
		},
	}
}

// selectContainers applies the --container filter the way the engine does.
func selectContainers(all []catalog.Container, names []string) ([]catalog.Container, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]catalog.Container, len(all))
	for _, c := range all {
		byName[c.Name] = c
	}
	var out []catalog.Container
	var unknown []string
	for _, n := range names {
		c, ok := byName[procedure.NormalizeID(n)]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		out = append(out, c)
	}
	if len(unknown) > 0 {
		return nil, commandError(ErrCodeUnknownContainer, "invalid container filter",
			fmt.Errorf("unknown container(s): %s", strings.Join(unknown, ", ")))
	}
	return out, nil
}
