package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/site-screener/internal/model"
	"github.com/sells-group/site-screener/internal/store"
)

// paramsFile is the YAML document accepted by `params create --file`.
type paramsFile struct {
	Name       string           `yaml:"name"`
	CreatedBy  string           `yaml:"created_by"`
	Activate   bool             `yaml:"activate"`
	Parameters model.Parameters `yaml:"parameters"`
}

// readParamsFile parses a parameter set from YAML. Unknown keys are rejected
// so a misspelled threshold does not silently fall back to zero.
func readParamsFile(r io.Reader) (*paramsFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var pf paramsFile
	if err := dec.Decode(&pf); err != nil {
		return nil, eris.Wrap(err, "params: decode yaml")
	}
	if pf.Name == "" {
		return nil, eris.New("params: name is required")
	}
	if err := pf.Parameters.Validate(); err != nil {
		return nil, err
	}
	return &pf, nil
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Manage versioned evaluation parameter sets",
}

var paramsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create and activate a parameter set from the configured defaults",
	Long:  "Seeds the first parameter set from the evaluation section of the config. Does nothing when a set is already active.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openParamsStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		active, err := st.ActiveConfig(ctx)
		switch {
		case err == nil:
			fmt.Fprintf(os.Stderr, "Parameter set v%d (%s) is already active.\n", active.Version, active.Name)
			return nil
		case !errors.Is(err, store.ErrNoActiveConfig):
			return eris.Wrap(err, "params init")
		}

		ec := &model.EvaluationConfig{
			Name:       "default",
			Parameters: cfg.Evaluation,
			CreatedBy:  "params init",
		}
		if err := st.CreateConfig(ctx, ec); err != nil {
			return eris.Wrap(err, "params init")
		}
		if err := st.ActivateConfig(ctx, ec.ID); err != nil {
			return eris.Wrap(err, "params init")
		}
		fmt.Fprintf(os.Stdout, "Activated parameter set v%d (%s)\n", ec.Version, ec.ID)
		return nil
	},
}

var paramsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active parameter set as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openParamsStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		active, err := st.ActiveConfig(ctx)
		if err != nil {
			return eris.Wrap(err, "params show")
		}
		return writeParamsYAML(os.Stdout, active)
	},
}

var paramsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new parameter set version from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			return eris.New("params create: --file is required")
		}
		activate, _ := cmd.Flags().GetBool("activate")

		f, err := os.Open(path) //nolint:gosec
		if err != nil {
			return eris.Wrapf(err, "params create: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		pf, err := readParamsFile(f)
		if err != nil {
			return err
		}

		st, err := openParamsStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ec := &model.EvaluationConfig{
			Name:       pf.Name,
			Parameters: pf.Parameters,
			CreatedBy:  pf.CreatedBy,
		}
		if err := st.CreateConfig(ctx, ec); err != nil {
			return eris.Wrap(err, "params create")
		}
		if activate || pf.Activate {
			if err := st.ActivateConfig(ctx, ec.ID); err != nil {
				return eris.Wrap(err, "params create")
			}
			ec.Active = true
		}
		fmt.Fprintf(os.Stdout, "Created parameter set v%d (%s) active=%t\n", ec.Version, ec.ID, ec.Active)
		return nil
	},
}

var paramsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List parameter set versions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openParamsStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cfgs, err := st.ListConfigs(ctx)
		if err != nil {
			return eris.Wrap(err, "params list")
		}
		if len(cfgs) == 0 {
			fmt.Fprintln(os.Stderr, "No parameter sets. Run `site-screener params init`.")
			return nil
		}
		formatConfigList(os.Stdout, cfgs)
		return nil
	},
}

var paramsActivateCmd = &cobra.Command{
	Use:   "activate <config-id>",
	Short: "Make a parameter set the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openParamsStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.ActivateConfig(ctx, args[0]); err != nil {
			return eris.Wrap(err, "params activate")
		}
		fmt.Fprintf(os.Stdout, "Activated %s\n", args[0])
		return nil
	},
}

func openParamsStore(cmd *cobra.Command) (store.Store, error) {
	ctx := cmd.Context()
	if err := cfg.Validate("params"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func writeParamsYAML(out io.Writer, ec *model.EvaluationConfig) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(paramsFile{
		Name:       ec.Name,
		CreatedBy:  ec.CreatedBy,
		Activate:   ec.Active,
		Parameters: ec.Parameters,
	}); err != nil {
		return eris.Wrap(err, "params: encode yaml")
	}
	return eris.Wrap(enc.Close(), "params: flush yaml")
}

func formatConfigList(out io.Writer, cfgs []model.EvaluationConfig) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSION\tID\tNAME\tACTIVE\tCREATED_BY\tCREATED")
	for _, c := range cfgs {
		active := ""
		if c.Active {
			active = "*"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			c.Version, c.ID, c.Name, active, c.CreatedBy, c.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func init() {
	paramsCreateCmd.Flags().String("file", "", "YAML parameter set")
	paramsCreateCmd.Flags().Bool("activate", false, "activate the new version")

	paramsCmd.AddCommand(paramsInitCmd)
	paramsCmd.AddCommand(paramsShowCmd)
	paramsCmd.AddCommand(paramsCreateCmd)
	paramsCmd.AddCommand(paramsListCmd)
	paramsCmd.AddCommand(paramsActivateCmd)
	rootCmd.AddCommand(paramsCmd)
}
