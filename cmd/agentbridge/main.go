// Command agentbridge translates agent workflows between the declarative
// graph schema and host SDK workflow scripts.
//
//	agentbridge compile -in workflow.go -out workflow.json
//	agentbridge generate -in workflow.json -out workflow.go
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spichen/agentbridge/flow/rulepack"
	"github.com/spichen/agentbridge/log"
	"github.com/spichen/agentbridge/schema"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "compile":
		err = compile(os.Args[2:])
	case "generate":
		err = generate(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: agentbridge <compile|generate> [flags]")
	fmt.Fprintln(os.Stderr, "  compile   workflow script -> declarative schema")
	fmt.Fprintln(os.Stderr, "  generate  declarative schema -> workflow script")
}

func resolvePack(version string, strict bool) (rulepack.Pack, error) {
	rulepack.MustRegister(rulepack.Builtin(rulepack.WithStrict(strict)))
	return rulepack.Resolve(version)
}

func compile(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	in := fs.String("in", "", "workflow script to compile")
	out := fs.String("out", "", "output schema file (.json or .yaml/.yml); stdout when empty")
	version := fs.String("rulepack", "", "dialect version hint (defaults to the host SDK version)")
	strict := fs.Bool("strict", false, "reject unsupported patterns instead of substituting")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *verbose {
		log.SetLevel("debug")
	}
	if *in == "" {
		return fmt.Errorf("compile: -in is required")
	}

	pack, err := resolvePack(*version, *strict)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("read %s: %w", *in, err)
	}
	f, err := pack.ParseSource(src)
	if err != nil {
		return err
	}
	g, err := pack.ToSchema(f)
	if err != nil {
		return err
	}
	log.Infof("compiled %s: %d nodes, %d edges", *in, len(g.Nodes), len(g.Edges))

	if *out == "" {
		data, err := schema.ToJSON(g)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	return schema.WriteToFile(g, *out)
}

func generate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	in := fs.String("in", "", "schema file (.json or .yaml/.yml) to generate from")
	out := fs.String("out", "", "output script file; stdout when empty")
	version := fs.String("rulepack", "", "dialect version hint (defaults to the host SDK version)")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *verbose {
		log.SetLevel("debug")
	}
	if *in == "" {
		return fmt.Errorf("generate: -in is required")
	}

	pack, err := resolvePack(*version, false)
	if err != nil {
		return err
	}
	g, err := schema.NewParser().ParseFile(*in)
	if err != nil {
		return err
	}
	f, err := pack.FromSchema(g)
	if err != nil {
		return err
	}
	src, err := pack.GenerateSource(f)
	if err != nil {
		return err
	}
	log.Infof("generated %s: %d bytes from %d nodes", *out, len(src), len(f.Nodes))

	if *out == "" {
		fmt.Print(string(src))
		return nil
	}
	return os.WriteFile(*out, src, 0o644)
}
