package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tiptoro/tiptoro-api/internal/gateway"
)

// ErrMissingSkills is returned by skills validate when a pipeline step has
// no descriptor.
var ErrMissingSkills = errors.New("pipeline steps without a skill descriptor")

func newSkillsCmd(root *rootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Inspect skill descriptors",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", DefaultSkillsDir, "Skills directory")

	list := &cobra.Command{
		Use:   "list",
		Short: "List discovered skills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := gateway.NewRegistry(root.logger(cmd))
			if err := reg.Discover(dir); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDESCRIPTION")
			for _, name := range reg.List() {
				meta, err := reg.Get(name)
				if err != nil {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\n", meta.Name, meta.Description)
			}
			return tw.Flush()
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check that every pipeline step has a descriptor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := root.logger(cmd)
			reg := gateway.NewRegistry(log)
			if err := reg.Discover(dir); err != nil {
				return err
			}
			missing := missingSteps(reg, gateway.NewCatalog(reg, log))
			if len(missing) > 0 {
				return fmt.Errorf("%w: %s", ErrMissingSkills, strings.Join(missing, ", "))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d skills, all pipeline steps present\n", len(reg.List()))
			return nil
		},
	}

	cmd.AddCommand(list, validate)
	return cmd
}

// missingSteps lists "pipeline/skill" for every step reg cannot serve.
func missingSteps(reg *gateway.Registry, catalog gateway.Catalog) []string {
	var missing []string
	for _, name := range catalog.Names() {
		p, _ := catalog.Pipeline(name)
		for _, step := range p.Steps() {
			if !reg.Has(step) {
				missing = append(missing, name+"/"+step)
			}
		}
	}
	return missing
}
