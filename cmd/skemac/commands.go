package main

import (
	"fmt"
	"io"
	"os"

	j "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/reoring/skemac"
)

func newCompileCmd(f *schemaFlags) *cobra.Command {
	var listing bool
	cmd := &cobra.Command{
		Use:   "compile -s schema [-r ref]... [--ir]",
		Short: "compile a schema and report errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, v, err := f.compile(skemac.DefaultOptions())
			if err != nil {
				return err
			}
			if !listing {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", f.schema)
				return nil
			}
			text, err := c.Listing(v)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	}
	addSchemaFlags(cmd, f)
	cmd.Flags().BoolVar(&listing, "ir", false, "print the compiled program")
	return cmd
}

type validateFlags struct {
	data      []string
	allErrors bool
	coerce    bool
	defaults  bool
}

func newValidateCmd(f *schemaFlags) *cobra.Command {
	vf := &validateFlags{}
	cmd := &cobra.Command{
		Use:   "validate -s schema [-r ref]... -d data...",
		Short: "validate documents against a schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := skemac.DefaultOptions()
			opts.AllErrors = vf.allErrors
			if vf.coerce {
				opts.Coerce = skemac.CoerceOn
			}
			if vf.defaults {
				opts.Defaults = skemac.DefaultsOn
			}
			_, v, err := f.compile(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			report := reportText
			if !isTerminal(out) {
				report = reportJSON
			}
			failed := false
			for _, path := range vf.data {
				if isJSONLines(path) {
					ok, err := validateLines(cmd, v, path, report)
					if err != nil {
						return err
					}
					failed = failed || !ok
					continue
				}
				res, err := validateFile(cmd, v, path)
				if err != nil {
					return err
				}
				if !res.Valid {
					failed = true
				}
				if err := report(out, path, res); err != nil {
					return err
				}
			}
			if failed {
				return errInvalid
			}
			return nil
		},
	}
	addSchemaFlags(cmd, f)
	cmd.Flags().StringSliceVarP(&vf.data, "data", "d", nil, "data files to validate")
	cmd.Flags().BoolVar(&vf.allErrors, "all-errors", false, "report every error instead of the first")
	cmd.Flags().BoolVar(&vf.coerce, "coerce", false, "coerce scalar types")
	cmd.Flags().BoolVar(&vf.defaults, "defaults", false, "assign default values")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func validateFile(cmd *cobra.Command, v *skemac.Validator, path string) (skemac.Result, error) {
	ctx := cmd.Context()
	if isYAML(path) {
		inst, err := readDocument(path)
		if err != nil {
			return skemac.Result{}, err
		}
		return v.Run(ctx, &inst)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return skemac.Result{}, err
	}
	res, _, err := v.ValidateJSON(ctx, b, skemac.DefaultDecodeOptions())
	return res, err
}

// validateLines reports every document of a JSON Lines file as path:N.
func validateLines(cmd *cobra.Command, v *skemac.Validator, path string, report func(io.Writer, string, skemac.Result) error) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	ok := true
	err = v.ValidateStream(cmd.Context(), f, skemac.DefaultDecodeOptions(), func(i int, res skemac.Result, _ any) error {
		ok = ok && res.Valid
		return report(cmd.OutOrStdout(), fmt.Sprintf("%s:%d", path, i+1), res)
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	return ok, nil
}

func reportText(w io.Writer, path string, res skemac.Result) error {
	if res.Valid {
		_, err := fmt.Fprintf(w, "%s: valid\n", path)
		return err
	}
	if _, err := fmt.Fprintf(w, "%s: invalid\n", path); err != nil {
		return err
	}
	for _, it := range res.Errors {
		loc := it.InstancePath
		if loc == "" {
			loc = "/"
		}
		if _, err := fmt.Fprintf(w, "  %s: %s (%s)\n", loc, it.Message, it.SchemaPath); err != nil {
			return err
		}
	}
	return nil
}

type jsonReport struct {
	File   string      `json:"file"`
	Valid  bool        `json:"valid"`
	Errors []jsonIssue `json:"errors,omitempty"`
}

type jsonIssue struct {
	InstancePath string         `json:"instancePath"`
	SchemaPath   string         `json:"schemaPath"`
	Keyword      string         `json:"keyword"`
	Params       map[string]any `json:"params,omitempty"`
	Message      string         `json:"message"`
}

func reportJSON(w io.Writer, path string, res skemac.Result) error {
	r := jsonReport{File: path, Valid: res.Valid}
	for _, it := range res.Errors {
		r.Errors = append(r.Errors, jsonIssue{
			InstancePath: it.InstancePath,
			SchemaPath:   it.SchemaPath,
			Keyword:      it.Keyword,
			Params:       it.Params,
			Message:      it.Message,
		})
	}
	b, err := j.Marshal(r)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

func newExportCmd(f *schemaFlags) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export -s schema [-r ref]... -o out.json",
		Short: "write the compiled program of a schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, v, err := f.compile(skemac.DefaultOptions())
			if err != nil {
				return err
			}
			b, err := c.Export(v)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			return os.WriteFile(out, b, 0o644)
		},
	}
	addSchemaFlags(cmd, f)
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}
