// Command skemac compiles JSON Schemas, validates documents against them and
// exports compiled validators.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reoring/skemac"
)

// errInvalid is returned when some document failed validation; the issues
// were already printed.
var errInvalid = errors.New("validation failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errInvalid) {
			fmt.Fprintln(os.Stderr, "skemac:", err)
		}
		os.Exit(1)
	}
}

// schemaFlags are shared by every subcommand that compiles a schema.
type schemaFlags struct {
	verbose bool
	lang    string
	schema  string
	refs    []string
}

func newRootCmd() *cobra.Command {
	f := &schemaFlags{}
	root := &cobra.Command{
		Use:           "skemac",
		Short:         "compile JSON Schemas into validators",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "log compiler activity to stderr")
	root.PersistentFlags().StringVar(&f.lang, "lang", "en", "message language (BCP-47 tag)")
	root.AddCommand(newCompileCmd(f), newValidateCmd(f), newExportCmd(f))
	return root
}

func addSchemaFlags(cmd *cobra.Command, f *schemaFlags) {
	cmd.Flags().StringVarP(&f.schema, "schema", "s", "", "schema file (.json, .yaml, .yml)")
	cmd.Flags().StringSliceVarP(&f.refs, "ref", "r", nil, "referenced schema files")
	_ = cmd.MarkFlagRequired("schema")
}

func (f *schemaFlags) logger() (*zap.Logger, error) {
	if !f.verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

// compile builds a compiler from opts, registers the reference schemas and
// compiles the main schema.
func (f *schemaFlags) compile(opts skemac.Options) (*skemac.Compiler, *skemac.Validator, error) {
	log, err := f.logger()
	if err != nil {
		return nil, nil, err
	}
	opts.Logger = log
	opts.Language = f.lang
	c := skemac.New(opts)
	for _, r := range f.refs {
		doc, err := readDocument(r)
		if err != nil {
			return nil, nil, err
		}
		if err := c.AddSchema(doc, ""); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", r, err)
		}
	}
	doc, err := readDocument(f.schema)
	if err != nil {
		return nil, nil, err
	}
	v, err := c.Compile(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", f.schema, err)
	}
	return c, v, nil
}

func isJSONLines(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return true
	}
	return false
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// readDocument loads a JSON or YAML file into the JSON value model.
func readDocument(path string) (any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isYAML(path) {
		v, err := skemac.ParseYAML(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return v, nil
	}
	v, _, err := skemac.DecodeJSON(b, skemac.DefaultDecodeOptions())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
