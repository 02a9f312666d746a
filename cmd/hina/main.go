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
	"time"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/hina-service/pkg/bipartite"
	"github.com/gilchrisn/hina-service/pkg/clustering"
	"github.com/gilchrisn/hina-service/pkg/config"
	"github.com/gilchrisn/hina-service/pkg/individual"
	"github.com/gilchrisn/hina-service/pkg/parser"
	"github.com/gilchrisn/hina-service/pkg/significance"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	subject, object   []string
	weight, attribute string
	groupColumn       string
	group             string

	alpha      float64
	fixDeg     string
	correction string
	prune      bool

	method  string
	against string
	fixB    int
	seed    uint64

	byAttribute    bool
	groupNormalize bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hina", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configPath = fs.String("config", "", "YAML config file with analysis defaults")
		subject    = fs.String("subject", "", "Subject column, or comma separated columns for a composite id")
		object     = fs.String("object", "", "Object column; two comma separated columns build a tripartite graph")
		weight     = fs.String("weight", "", "Weight column (default: each row counts 1)")
		attribute  = fs.String("attribute", "", "Object attribute column")
		groupCol   = fs.String("group-col", "group", "Group column")
		group      = fs.String("group", parser.AllGroups, "Group to analyse, or All")

		alpha      = fs.Float64("alpha", 0.05, "Significance level")
		fixDeg     = fs.String("fix-deg", "none", "Null model marginal: none, subject, object or a column name")
		correction = fs.String("correction", "none", "Multiple testing correction: none or bonferroni")
		prune      = fs.Bool("prune", false, "Prune to significant edges before partition or quantity")

		method  = fs.String("method", clustering.MethodMDL, "Clustering method: "+strings.Join(clustering.Methods(), ", "))
		against = fs.String("against", clustering.MethodModularity, "Second method for compare")
		fixB    = fs.Int("fix-b", 0, "Number of blocks (0 searches for the best)")
		seed    = fs.Uint64("seed", 42, "Random seed")

		byAttribute    = fs.Bool("by-attribute", false, "Measure diversity over object attributes")
		groupNormalize = fs.Bool("group-normalize", false, "Add quantities relative to each group")

		logLevel = fs.String("log-level", "warn", "Log level")
	)

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: hina [flags] <command> <input>\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		fmt.Fprintf(stderr, "  prune      - Test every edge against the null model\n")
		fmt.Fprintf(stderr, "  partition  - Partition subjects into blocks\n")
		fmt.Fprintf(stderr, "  quantity   - Per-subject quantity and diversity\n")
		fmt.Fprintf(stderr, "  compare    - Partition with -method and -against and report their NMI\n\n")
		fmt.Fprintf(stderr, "Input is a .csv or .xlsx table, or a whitespace separated edge list (.txt, .edges).\n\n")
		fmt.Fprintf(stderr, "Examples:\n")
		fmt.Fprintf(stderr, "  hina -subject student -object task prune records.csv\n")
		fmt.Fprintf(stderr, "  hina -subject student -object task -fix-b 3 partition records.xlsx\n")
		fmt.Fprintf(stderr, "  hina -subject student -object behavior,code quantity records.csv\n")
		fmt.Fprintf(stderr, "  hina -subject student -object task -against modularity compare records.csv\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return exitUsage
	}
	command, input := fs.Arg(0), fs.Arg(1)

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "invalid log level %q\n", *logLevel)
		return exitUsage
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().
		Timestamp().
		Str("service", "hina").
		Logger()

	opts := options{
		subject:        splitColumns(*subject),
		object:         splitColumns(*object),
		weight:         *weight,
		attribute:      *attribute,
		groupColumn:    *groupCol,
		group:          *group,
		alpha:          *alpha,
		fixDeg:         *fixDeg,
		correction:     *correction,
		prune:          *prune,
		method:         *method,
		against:        *against,
		fixB:           *fixB,
		seed:           *seed,
		byAttribute:    *byAttribute,
		groupNormalize: *groupNormalize,
	}
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitError
		}
		applyConfig(&opts, cfg, fs)
	}

	out, err := execute(ctx, command, input, opts, logger)
	if errors.Is(err, errUsage) {
		fmt.Fprintln(stderr, err)
		fs.Usage()
		return exitUsage
	}
	if err != nil {
		logger.Error().Err(err).Str("command", command).Msg("Command failed")
		return exitError
	}

	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		logger.Error().Err(err).Msg("Failed to encode output")
		return exitError
	}
	return exitOK
}

// applyConfig fills the analysis options the command line left unset.
func applyConfig(opts *options, cfg *config.Config, fs *flag.FlagSet) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["alpha"] {
		opts.alpha = cfg.Alpha()
	}
	if !set["fix-deg"] {
		opts.fixDeg = cfg.FixDeg()
	}
	if !set["correction"] {
		opts.correction = cfg.Correction()
	}
	if !set["method"] {
		opts.method = cfg.Method()
	}
	if !set["seed"] {
		opts.seed = cfg.RandomSeed()
	}
}

func execute(ctx context.Context, command, input string, opts options, logger zerolog.Logger) (interface{}, error) {
	switch command {
	case "prune", "partition", "quantity", "compare":
	default:
		return nil, fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	start := time.Now()
	g, err := loadGraph(input, opts)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("input", input).
		Int("subjects", g.NumSubjects()).
		Int("objects", g.NumObjects()).
		Int("edges", g.NumEdges()).
		Msg("Graph loaded")

	pruneOpts := significance.Options{
		Alpha:      opts.alpha,
		FixDeg:     opts.fixDeg,
		Columns:    sideColumns(opts),
		Correction: significance.Correction(opts.correction),
		Logger:     logger,
	}
	if command == "prune" {
		return significance.Prune(g, pruneOpts)
	}
	if opts.prune {
		result, err := significance.Prune(g, pruneOpts)
		if err != nil {
			return nil, err
		}
		g = result.Pruned
	}

	if command == "quantity" {
		return individual.QuantityAndDiversity(g, individual.Options{
			ByAttribute:    opts.byAttribute,
			GroupNormalize: opts.groupNormalize,
		}), nil
	}

	result, err := partition(ctx, g, opts.method, opts, logger)
	if err != nil {
		return nil, err
	}
	if command == "partition" {
		logger.Info().
			Str("method", result.Method).
			Int("blocks", result.Blocks).
			Dur("duration", time.Since(start)).
			Msg("Partition completed")
		return result, nil
	}

	other, err := partition(ctx, g, opts.against, opts, logger)
	if err != nil {
		return nil, err
	}
	if !result.Implemented() || !other.Implemented() {
		return nil, fmt.Errorf("compare needs two implemented methods, got %s and %s", result.Method, other.Method)
	}
	comparison, err := clustering.Compare(result.Assignment, other.Assignment)
	if err != nil {
		return nil, err
	}
	return comparisonOutput{
		A:          result,
		B:          other,
		Comparison: comparison,
	}, nil
}

type comparisonOutput struct {
	A          *clustering.Result     `json:"a"`
	B          *clustering.Result     `json:"b"`
	Comparison *clustering.Comparison `json:"comparison"`
}

func partition(ctx context.Context, g *bipartite.Graph, method string, opts options, logger zerolog.Logger) (*clustering.Result, error) {
	seed := opts.seed
	return clustering.Partition(ctx, g, clustering.Options{
		Method:       method,
		FixB:         opts.fixB,
		Seed:         &seed,
		ObjectLabels: true,
		Logger:       logger,
	})
}

// loadGraph reads a table (csv, xlsx) or a plain edge list.
func loadGraph(path string, opts options) (*bipartite.Graph, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".edges", ".edgelist":
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer file.Close()
		triples, err := parser.ParseEdgeList(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return bipartite.FromTriples(triples)
	}

	if len(opts.subject) == 0 || len(opts.object) == 0 {
		return nil, fmt.Errorf("%w: -subject and -object are required for tables", errUsage)
	}
	table, err := parser.ReadFile(path)
	if err != nil {
		return nil, err
	}
	spec := parser.GraphSpec{
		Subject:   opts.subject,
		Object:    opts.object,
		Weight:    opts.weight,
		Attribute: opts.attribute,
	}
	if _, ok := table.Index(opts.groupColumn); ok {
		spec.Group = opts.groupColumn
	}
	filtered, err := table.FilterGroup(opts.groupColumn, opts.group)
	if err != nil {
		return nil, err
	}
	return parser.BuildGraph(filtered, spec)
}

func sideColumns(opts options) map[string]bipartite.Side {
	columns := make(map[string]bipartite.Side, len(opts.subject)+len(opts.object))
	for _, c := range opts.subject {
		columns[c] = bipartite.SideSubject
	}
	for _, c := range opts.object {
		columns[c] = bipartite.SideObject
	}
	return columns
}

func splitColumns(value string) []string {
	var columns []string
	for _, c := range strings.Split(value, ",") {
		if c = strings.TrimSpace(c); c != "" {
			columns = append(columns, c)
		}
	}
	return columns
}
