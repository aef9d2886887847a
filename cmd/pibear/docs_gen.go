package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/dotsetgreg/pibear/pkg/config"
	"github.com/dotsetgreg/pibear/pkg/providers"
	"github.com/spf13/cobra"
	cobraDoc "github.com/spf13/cobra/doc"
)

func newDocsCommand(rootFactory func() *cobra.Command) *cobra.Command {
	docsRoot := &cobra.Command{
		Use:    "docs",
		Short:  "Internal docs maintenance commands",
		Hidden: true,
	}

	var (
		outputDir string
		checkOnly bool
	)

	gen := &cobra.Command{
		Use:   "generate",
		Short: "Generate CLI and config reference docs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(outputDir) == "" {
				return fmt.Errorf("--output must not be empty")
			}
			return generateDocumentation(rootFactory, outputDir, checkOnly)
		},
	}
	gen.Flags().StringVar(&outputDir, "output", "docs", "Docs directory root")
	gen.Flags().BoolVar(&checkOnly, "check", false, "Fail if generated docs are out of date")

	docsRoot.AddCommand(gen)
	return docsRoot
}

func generateDocumentation(rootFactory func() *cobra.Command, outputDir string, checkOnly bool) error {
	tmpDir, err := os.MkdirTemp("", "pibear-docs-gen-*")
	if err != nil {
		return fmt.Errorf("create temp docs dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	generated, err := writeGeneratedReferences(rootFactory, tmpDir)
	if err != nil {
		return err
	}

	for _, rel := range generated {
		src := filepath.Join(tmpDir, rel)
		dst := filepath.Join(outputDir, rel)
		if checkOnly {
			if err := compareTree(src, dst, rel); err != nil {
				return err
			}
			continue
		}
		if err := copyTree(src, dst); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	}
	return nil
}

func writeGeneratedReferences(rootFactory func() *cobra.Command, outDir string) ([]string, error) {
	cliRoot := rootFactory()
	disableAutoGenTag(cliRoot)

	cliDir := filepath.Join(outDir, "reference", "cli")
	if err := os.MkdirAll(cliDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cli docs dir: %w", err)
	}
	prepender := func(filename string) string {
		title := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		return fmt.Sprintf("# %s\n\n", strings.ReplaceAll(title, "_", " "))
	}
	linkHandler := func(name string) string { return name }
	if err := cobraDoc.GenMarkdownTreeCustom(cliRoot, cliDir, prepender, linkHandler); err != nil {
		return nil, fmt.Errorf("generate cli markdown docs: %w", err)
	}

	manDir := filepath.Join(outDir, "reference", "man")
	if err := os.MkdirAll(manDir, 0o755); err != nil {
		return nil, fmt.Errorf("create man docs dir: %w", err)
	}
	header := &cobraDoc.GenManHeader{Title: "PIBEAR", Section: "1", Source: appName}
	if err := cobraDoc.GenManTree(cliRoot, header, manDir); err != nil {
		return nil, fmt.Errorf("generate man pages: %w", err)
	}

	configRef, err := buildConfigReferenceMarkdown()
	if err != nil {
		return nil, err
	}
	configPath := filepath.Join(outDir, "reference", "config.md")
	if err := os.WriteFile(configPath, []byte(configRef), 0o644); err != nil {
		return nil, err
	}

	return []string{
		filepath.Join("reference", "cli"),
		filepath.Join("reference", "man"),
		filepath.Join("reference", "config.md"),
	}, nil
}

func disableAutoGenTag(cmd *cobra.Command) {
	cmd.DisableAutoGenTag = true
	for _, child := range cmd.Commands() {
		disableAutoGenTag(child)
	}
}

type configFieldRow struct {
	Path    string
	Type    string
	Env     string
	Default string
}

// buildConfigReferenceMarkdown renders every config key with its env
// override and default value.
func buildConfigReferenceMarkdown() (string, error) {
	defaults, err := flattenConfigDefaults()
	if err != nil {
		return "", err
	}

	rows := []configFieldRow{}
	collectConfigRows(reflect.TypeOf((*config.Config)(nil)).Elem(), "", defaults, &rows)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })

	var b strings.Builder
	b.WriteString("# Config Reference\n\n")
	b.WriteString("Generated from `pkg/config/config.go` and `config.DefaultConfig()`.\n\n")
	b.WriteString("AI backends: ")
	for i, name := range providers.SupportedProviders() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("`" + name + "`")
	}
	b.WriteString("\n\n")
	b.WriteString("| Key | Type | Env Var | Default |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, row := range rows {
		b.WriteString("| `" + escapePipes(row.Path) + "` | `" + escapePipes(row.Type) + "` | `" + escapePipes(valueOr(row.Env, "-")) + "` | `" + escapePipes(valueOr(row.Default, "-")) + "` |\n")
	}
	return b.String(), nil
}

func collectConfigRows(t reflect.Type, prefix string, defaults map[string]string, rows *[]configFieldRow) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		jsonTag := strings.TrimSpace(strings.Split(f.Tag.Get("json"), ",")[0])
		if jsonTag == "" || jsonTag == "-" {
			continue
		}
		path := jsonTag
		if prefix != "" {
			path = prefix + "." + jsonTag
		}
		if f.Type.Kind() == reflect.Struct {
			collectConfigRows(f.Type, path, defaults, rows)
			continue
		}
		*rows = append(*rows, configFieldRow{
			Path:    path,
			Type:    friendlyType(f.Type),
			Env:     strings.TrimSpace(f.Tag.Get("env")),
			Default: defaults[path],
		})
	}
}

func flattenConfigDefaults() (map[string]string, error) {
	data, err := json.Marshal(config.DefaultConfig())
	if err != nil {
		return nil, err
	}
	var root map[string]interface{}
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	out := map[string]string{}
	flattenMapValues("", root, out)
	return out, nil
}

func flattenMapValues(prefix string, v interface{}, out map[string]string) {
	if typed, ok := v.(map[string]interface{}); ok {
		for k, child := range typed {
			next := k
			if prefix != "" {
				next = prefix + "." + k
			}
			flattenMapValues(next, child, out)
		}
		return
	}
	encoded, _ := json.Marshal(v)
	out[prefix] = string(encoded)
}

func friendlyType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Slice:
		return "array<" + friendlyType(t.Elem()) + ">"
	default:
		return t.String()
	}
}

func escapePipes(v string) string {
	return strings.ReplaceAll(v, "|", "\\|")
}

func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst)
	}
	_ = os.RemoveAll(dst)
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func compareTree(src, dst, rel string) error {
	srcFiles, err := listFiles(src)
	if err != nil {
		return fmt.Errorf("generated path missing: %s (%w)", rel, err)
	}
	dstFiles, err := listFiles(dst)
	if err != nil {
		return fmt.Errorf("docs out of date: missing %s", rel)
	}
	if strings.Join(srcFiles, "\n") != strings.Join(dstFiles, "\n") {
		return fmt.Errorf("docs out of date: file set mismatch under %s", rel)
	}
	for _, name := range srcFiles {
		want, err := os.ReadFile(filepath.Join(src, name))
		if err != nil {
			return err
		}
		got, err := os.ReadFile(filepath.Join(dst, name))
		if err != nil {
			return err
		}
		if !bytes.Equal(want, got) {
			return fmt.Errorf("docs out of date: %s changed; run `pibear docs generate`", filepath.Join(rel, name))
		}
	}
	return nil
}

// listFiles returns the sorted file paths under root relative to root. A
// plain file lists as ".".
func listFiles(root string) ([]string, error) {
	files := []string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
