package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"sourcectl/internal/domain"
	"sourcectl/internal/sourceform"
)

func (e *env) types(ctx context.Context, args []string) error {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	types, err := e.client.ListProviderTypes(ctx, prefix)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERBOSE NAME\tCUSTOM URLS\tOAUTH1")
	for _, t := range types {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\n", t.Name, t.VerboseName, t.URLsCustomizable, t.RequestTokenURL != "")
	}
	return tw.Flush()
}

func (e *env) show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: sourcectl show <slug>")
	}
	src, err := e.client.LoadSource(ctx, args[0])
	if err != nil {
		return err
	}
	return writeYAML(e.stdout, src)
}

// editFlags selects the source being edited: an existing slug, or the
// model name of a new source.
type editFlags struct {
	slug  string
	model string
}

func (f *editFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.slug, "slug", "", "slug of an existing source to edit")
	fs.StringVar(&f.model, "model", "", "model name of a new source, e.g. githuboauthsource")
}

// openForm prepares a form for editing and returns its projection for the
// server's current capabilities.
func (e *env) openForm(ctx context.Context, f editFlags) (*sourceform.Form, sourceform.Projection, error) {
	form := sourceform.NewForm(e.client, e.client, e.logger)
	if err := form.Load(ctx); err != nil {
		return nil, sourceform.Projection{}, err
	}
	switch {
	case f.slug != "":
		if _, err := form.LoadInstance(ctx, f.slug); err != nil {
			return nil, sourceform.Projection{}, err
		}
	case f.model != "":
		form.SetModelName(ctx, f.model)
		form.WaitResolved()
		if form.ProviderType() == nil {
			return nil, sourceform.Projection{}, fmt.Errorf("no provider type matches model %q", f.model)
		}
	default:
		return nil, sourceform.Projection{}, errors.New("one of -slug or -model is required")
	}
	cfg, err := e.client.GetConfig(ctx)
	if err != nil {
		return nil, sourceform.Projection{}, err
	}
	return form, form.Project(*cfg), nil
}

func (e *env) form(ctx context.Context, args []string) error {
	var ef editFlags
	fs := flag.NewFlagSet("form", flag.ContinueOnError)
	ef.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, proj, err := e.openForm(ctx, ef)
	if err != nil {
		return err
	}
	return writeYAML(e.stdout, proj)
}

func (e *env) apply(ctx context.Context, args []string) error {
	var ef editFlags
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	ef.register(fs)
	file := fs.String("f", "", "YAML file with the field values to submit")
	iconPath := fs.String("icon", "", "icon file to upload (servers that can save media)")
	clearIcon := fs.Bool("clear-icon", false, "remove the stored icon")
	discover := fs.Bool("discover", false, "fill empty URLs from the OIDC well-known document")
	if err := fs.Parse(args); err != nil {
		return err
	}

	form, proj, err := e.openForm(ctx, ef)
	if err != nil {
		return err
	}

	values := proj.Values()
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			return fmt.Errorf("read values: %w", err)
		}
		if err := yaml.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("parse values: %w", err)
		}
	}
	if *clearIcon {
		values.ClearIcon = true
	}
	if *iconPath != "" {
		data, err := os.ReadFile(*iconPath)
		if err != nil {
			return fmt.Errorf("read icon: %w", err)
		}
		if err := form.Icon().ChooseFile(&domain.IconUpload{Filename: filepath.Base(*iconPath), Data: data}); err != nil {
			return err
		}
	}
	values = proj.Restrict(values)

	if *discover {
		if values.OIDCWellKnownURL == nil || *values.OIDCWellKnownURL == "" {
			return errors.New("-discover needs a well-known URL")
		}
		d, err := sourceform.Discover(ctx, nil, *values.OIDCWellKnownURL)
		if err != nil {
			return err
		}
		values.ApplyDiscovery(d)
	}

	if missing := proj.Missing(values); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m)
		}
		return fmt.Errorf("missing required fields: %s", strings.Join(names, ", "))
	}

	saved, err := form.Send(ctx, values)
	if err != nil {
		return err
	}
	return writeYAML(e.stdout, saved)
}

// writeYAML prints v as block YAML under its JSON field names, in
// declaration order.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return err
	}
	blockStyle(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle drops the flow and quoting styles JSON input carries; the
// encoder still quotes scalars that would not read back as strings.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
