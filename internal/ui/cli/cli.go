package cli

import "flag"

const versionString = "1.0.0"
const defaultConfigPath = "./data/config/aquanet.toml"

type cliOptions struct {
	configPath    string
	once          bool
	ui            bool
	quality       bool
	scenarios     string
	save          string
	history       bool
	since         string
	historyWindow string
	historyJSON   string
	verbose       bool
	version       bool
	args          []string
}

func parseOptions(args []string) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("aquanet", flag.ContinueOnError)

	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to config file")
	fs.BoolVar(&opts.once, "once", false, "Simulate every network once and exit")
	fs.BoolVar(&opts.ui, "ui", false, "Enable terminal dashboard in watch mode")
	fs.BoolVar(&opts.quality, "quality", false, "Run water quality in addition to hydraulics")
	fs.StringVar(&opts.scenarios, "scenarios", "", "Run the Monte Carlo scenario file (YAML) and exit")
	fs.StringVar(&opts.save, "save", "", "Write the network back out as an .inp file and exit")
	fs.BoolVar(&opts.history, "history", false, "Print run trends from the history store")
	fs.StringVar(&opts.since, "since", "", "Include runs at/after this timestamp (RFC3339 or YYYY-MM-DD)")
	fs.StringVar(&opts.historyWindow, "history-window", "24h", "Moving-window duration for trend summaries (requires --history)")
	fs.StringVar(&opts.historyJSON, "history-json", "", "Write trend reports as JSON to this path (requires --history)")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging and per-table result summaries")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	opts.args = fs.Args()
	return opts, nil
}
