package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-lens/config"
	"github.com/wippyai/wasm-lens/host"
	"github.com/wippyai/wasm-lens/record"
	"github.com/wippyai/wasm-lens/stream"
)

var (
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to a lens module")
		params      = flag.String("params", "", "Lens parameters as JSON (with -wasm)")
		inverse     = flag.Bool("inverse", false, "Run the lens in reverse")
		cfgFile     = flag.String("config", "", "Lens pipeline document (YAML or JSON)")
		input       = flag.String("input", "", "Newline-delimited JSON records (default stdin)")
		info        = flag.Bool("info", false, "Print the lens entry points and exit")
		verbose     = flag.Bool("v", false, "Log guest calls to stderr")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *wasmFile == "" && *cfgFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <lens.wasm> [-params JSON] [-inverse] [-input records.jsonl]")
		fmt.Fprintln(os.Stderr, "       run -config <pipeline.yaml> [-inverse] [-input records.jsonl]")
		fmt.Fprintln(os.Stderr, "       run -wasm <lens.wasm> -info")
		fmt.Fprintln(os.Stderr, "       run -wasm <lens.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			host.SetLogger(logger)
			defer func() { _ = logger.Sync() }()
		}
	}

	lens, err := pipelineConfig(*cfgFile, *wasmFile, *params)
	if err != nil {
		fail(err)
	}
	if *inverse {
		lens = lens.Reverse()
	}

	if *info {
		if err := printInfo(lens); err != nil {
			fail(err)
		}
		return
	}

	if *interactive {
		if err := runInteractive(lens); err != nil {
			fail(err)
		}
		return
	}

	in := io.Reader(os.Stdin)
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			fail(err)
		}
		defer f.Close()
		in = f
	} else if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, styled(infoStyle, "reading records from the terminal, one JSON object per line; ctrl+d ends the stream"))
	}

	if err := run(context.Background(), lens, in, os.Stdout); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, styled(errStyle, "Error: "+err.Error()))
	os.Exit(1)
}

// styled renders s with style only when stderr is a terminal.
func styled(style lipgloss.Style, s string) string {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return s
	}
	return style.Render(s)
}

// pipelineConfig reads the pipeline document, or builds a single-stage one
// from -wasm and -params.
func pipelineConfig(cfgFile, wasmFile, params string) (*config.Lens, error) {
	if cfgFile != "" {
		return config.Load(cfgFile)
	}
	m := config.Module{Path: wasmFile}
	if params != "" {
		// JSON is a YAML subset.
		if err := yaml.Unmarshal([]byte(params), &m.Arguments); err != nil {
			return nil, fmt.Errorf("params: %w", err)
		}
	}
	lens := &config.Lens{Modules: []config.Module{m}}
	return lens, lens.Validate()
}

// pipeline is a chain of configured instances, each pulling from the one
// before it.
type pipeline struct {
	rt        *host.Runtime
	instances []*host.Instance
}

func openPipeline(ctx context.Context, lens *config.Lens) (*pipeline, error) {
	rt, err := host.New(ctx, nil)
	if err != nil {
		return nil, err
	}
	p := &pipeline{rt: rt}
	for _, m := range lens.Modules {
		inst, err := rt.Open(ctx, m)
		if err != nil {
			p.Close(ctx)
			return nil, fmt.Errorf("%s: %w", m.Path, err)
		}
		p.instances = append(p.instances, inst)
	}
	return p, nil
}

// Stream wraps src in every stage, first stage innermost.
func (p *pipeline) Stream(ctx context.Context, src host.Source) host.Source {
	for _, inst := range p.instances {
		src = inst.Stream(ctx, src, inst.Direction())
	}
	return src
}

func (p *pipeline) Close(ctx context.Context) {
	for _, inst := range p.instances {
		_ = inst.Close(ctx)
	}
	_ = p.rt.Close(ctx)
}

// lineSource reads one JSON record per line. Blank lines are skipped
// positions.
type lineSource struct {
	scanner *bufio.Scanner
	line    int
}

func newLineSource(r io.Reader) *lineSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &lineSource{scanner: scanner}
}

func (s *lineSource) Next() (host.Control, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return host.Control{}, err
		}
		return stream.EndOfStream[*record.Record](), nil
	}
	s.line++
	text := strings.TrimSpace(s.scanner.Text())
	if text == "" {
		return stream.Skip[*record.Record](), nil
	}
	rec, err := record.Parse([]byte(text))
	if err != nil {
		return host.Control{}, fmt.Errorf("line %d: %w", s.line, err)
	}
	return stream.Some(rec), nil
}

func run(ctx context.Context, lens *config.Lens, in io.Reader, out io.Writer) error {
	p, err := openPipeline(ctx, lens)
	if err != nil {
		return err
	}
	defer p.Close(ctx)

	return copyRecords(p.Stream(ctx, newLineSource(in)), out)
}

// copyRecords writes every record from src to out, one JSON object per line.
func copyRecords(src host.Source, out io.Writer) error {
	w := bufio.NewWriter(out)
	for {
		ctl, err := src.Next()
		if err != nil {
			return err
		}
		if ctl.IsEndOfStream() {
			if err := w.Flush(); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			return nil
		}
		rec, ok := ctl.Value()
		if !ok {
			continue
		}
		data, err := rec.MarshalJSON()
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
}

func printInfo(lens *config.Lens) error {
	ctx := context.Background()
	rt, err := host.New(ctx, nil)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	for _, m := range lens.Modules {
		mod, err := rt.LoadFile(ctx, m.Path)
		if err != nil {
			return err
		}
		fmt.Printf("Lens: %s\n", m.Path)
		fmt.Printf("  %s: %s\n", host.ExportTransform, mod.Shape())
		if mod.Invertible() {
			fmt.Printf("  %s: %s\n", host.ExportInverse, mod.InverseShape())
		} else {
			fmt.Printf("  %s: none\n", host.ExportInverse)
		}
	}
	return nil
}
