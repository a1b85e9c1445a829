package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/extdiff/internal/udf"
)

func newDeclareCmd(a *app) *cobra.Command {
	var (
		source     string
		userHeader string
		validate   bool
	)
	cmd := &cobra.Command{
		Use:   "declare",
		Short: "Print forward declarations and build flags for a model",
		Long: `Prints the functions block declaring every registered adapter and the make
variables the generated model binary needs. With --source, the model file's
body-less declarations are checked against the registry first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := udf.FlagsFromConfig(a.cfg.Build)
			flags.UserHeader = userHeader
			return runDeclare(cmd.OutOrStdout(), udf.Builtins(), flags, source, validate)
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "model source file to check")
	cmd.Flags().StringVar(&userHeader, "user-header", "", "header with the adapter implementations")
	cmd.Flags().BoolVar(&validate, "validate", false, "fail if include or library directories are missing")
	return cmd
}

func runDeclare(w io.Writer, reg *udf.Registry, flags udf.BuildFlags, source string, validate bool) error {
	if source != "" {
		text, err := os.ReadFile(source)
		if err != nil {
			return errors.Wrap(err, "reading model source")
		}
		if err := reg.CheckSource(string(text), flags.AllowUndefined); err != nil {
			return errors.Wrap(err, source)
		}
	}
	if validate {
		if err := flags.Validate(); err != nil {
			return err
		}
	}

	fmt.Fprint(w, reg.Declarations())
	if mk := flags.Makefile(); mk != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, mk)
	}
	return nil
}
