package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/winvd/internal/config"
)

func loadConfigResult(path string) (*config.LoadResult, error) {
	if path == "" {
		return config.LoadWithSources()
	}
	return config.LoadFromPath(path)
}

func runConfig(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  winvd config validate [--path PATH]")
		fmt.Fprintln(os.Stderr, "  winvd config print [--path PATH] [--defaults]")
		fmt.Fprintln(os.Stderr, "  winvd config explain [--path PATH] <yaml.path>")
		fmt.Fprintln(os.Stderr, "  winvd config paths")
		return 2
	}

	fs := newCommand(args[0], nil)
	path := fs.String("path", "", "Config file path (default: <UserConfigDir>/winvd/config.yaml)")

	switch args[0] {
	case "validate":
		if code := parse(fs, args[1:], 0); code >= 0 {
			return code
		}
		if _, err := loadConfigResult(*path); err != nil {
			return fail(err)
		}
		fmt.Println("config: ok")
		return 0

	case "print":
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		if code := parse(fs, args[1:], 0); code >= 0 {
			return code
		}
		cfg := config.DefaultConfig()
		if !*printDefaults {
			res, err := loadConfigResult(*path)
			if err != nil {
				return fail(err)
			}
			cfg = res.Config
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fail(err)
		}
		fmt.Print(string(data))
		return 0

	case "explain":
		if code := parse(fs, args[1:], 1); code >= 0 {
			return code
		}
		queryPath := fs.Arg(0)
		res, err := loadConfigResult(*path)
		if err != nil {
			return fail(err)
		}
		value, src, err := config.Explain(res, queryPath)
		if err != nil {
			return fail(err)
		}
		out, err := yaml.Marshal(value)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("path: %s\n", queryPath)
		fmt.Printf("source: %s\n", formatSource(src))
		fmt.Printf("value:\n%s", string(out))
		return 0

	case "paths":
		if code := parse(fs, args[1:], 0); code >= 0 {
			return code
		}
		for _, p := range config.Paths() {
			fmt.Println(p)
		}
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func formatSource(src config.Source) string {
	switch src.Kind {
	case config.SourceFile:
		if src.File == "" {
			return "file"
		}
		if src.Line > 0 {
			return fmt.Sprintf("file:%s:%d:%d", src.File, src.Line, src.Column)
		}
		return "file:" + src.File
	case config.SourceDefault:
		if src.Name != "" {
			return "default:" + src.Name
		}
		return "default"
	default:
		return string(src.Kind)
	}
}
