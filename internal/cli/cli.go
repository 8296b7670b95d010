// Package cli implements the mnist command: it classifies one digit and
// prints the predicted and actual label.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/mnist-infer/internal/config"
	"github.com/Brownie44l1/mnist-infer/internal/dataset"
	"github.com/Brownie44l1/mnist-infer/internal/driver"
	"github.com/Brownie44l1/mnist-infer/internal/model"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitLoadFailed = 1
	ExitUsage      = 2
	ExitModel      = 3
)

type flags struct {
	configPath string
	dataDir    string
	set        string
	index      int
	image      string
	label      int
	invert     bool
	modelPath  string
	input      string
	output     string
	inputShape string
	classes    int
	engine     string
	compute    string
	threads    int
	ortLib     string
	logLevel   string
}

func newFlagSet(stderr io.Writer, f *flags) *flag.FlagSet {
	d := config.Default()
	fs := flag.NewFlagSet("mnist", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&f.configPath, "config", "", "Path to optional YAML config")
	fs.StringVar(&f.dataDir, "data", d.DataDir, "Directory holding the MNIST IDX files")
	fs.StringVar(&f.set, "set", d.Set, "Dataset half to read: t10k or train")
	fs.IntVar(&f.index, "index", d.Index, "Zero-based sample index")
	fs.StringVar(&f.image, "image", d.Image, "Classify a PNG/JPEG file instead of an IDX sample")
	fs.IntVar(&f.label, "label", d.Label, "Ground-truth label for -image (-1 = unknown)")
	fs.BoolVar(&f.invert, "invert", d.Invert, "Invert -image intensities (dark ink on light paper)")
	fs.StringVar(&f.modelPath, "model", d.ModelPath, "Model artifact path")
	fs.StringVar(&f.input, "input", d.InputName, "Input node name")
	fs.StringVar(&f.output, "output", d.OutputName, "Output node name")
	fs.StringVar(&f.inputShape, "input-shape", config.FormatShape(d.InputShape), "Comma separated input tensor shape")
	fs.IntVar(&f.classes, "classes", d.Classes, "Number of output classes")
	fs.StringVar(&f.engine, "engine", d.Engine, "Inference engine: auto or one of the registered engines")
	fs.StringVar(&f.compute, "compute", d.Compute, "Compute backend: "+computeNames())
	fs.IntVar(&f.threads, "threads", d.Threads, "Intra-op threads (0 = library default)")
	fs.StringVar(&f.ortLib, "ort-lib", d.OnnxRuntimeLib, "Path to the onnxruntime shared library")
	fs.StringVar(&f.logLevel, "log-level", d.LogLevel, "Diagnostic log level")
	return fs
}

func computeNames() string {
	names := make([]string, len(model.Computes))
	for i, c := range model.Computes {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// apply copies every flag the user set explicitly onto cfg, so flags win
// over the config file and the file wins over defaults.
func (f *flags) apply(fs *flag.FlagSet, cfg *config.Config) error {
	var err error
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "data":
			cfg.DataDir = f.dataDir
		case "set":
			cfg.Set = f.set
		case "index":
			cfg.Index = f.index
		case "image":
			cfg.Image = f.image
		case "label":
			cfg.Label = f.label
		case "invert":
			cfg.Invert = f.invert
		case "model":
			cfg.ModelPath = f.modelPath
		case "input":
			cfg.InputName = f.input
		case "output":
			cfg.OutputName = f.output
		case "input-shape":
			shape, perr := config.ParseShape(f.inputShape)
			if perr != nil {
				err = perr
				return
			}
			cfg.InputShape = shape
		case "classes":
			cfg.Classes = f.classes
		case "engine":
			cfg.Engine = f.engine
		case "compute":
			cfg.Compute = f.compute
		case "threads":
			cfg.Threads = f.threads
		case "ort-lib":
			cfg.OnnxRuntimeLib = f.ortLib
		case "log-level":
			cfg.LogLevel = f.logLevel
		}
	})
	return err
}

// Run executes the command and returns the process exit code. Only the
// prediction goes to stdout.
func Run(args []string, stdout, stderr io.Writer) int {
	var f flags
	fs := newFlagSet(stderr, &f)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}

	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			fmt.Fprintf(stderr, "failed to load config: %v\n", err)
			return ExitUsage
		}
		cfg = loaded
	}
	if err := f.apply(fs, cfg); err != nil {
		fmt.Fprintf(stderr, "invalid flags: %v\n", err)
		return ExitUsage
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return ExitUsage
	}

	log := newLogger(stderr, cfg.LogLevel)

	engine, err := model.Resolve(cfg.Engine, cfg.ModelPath)
	if err != nil {
		log.WithError(err).Error("no inference engine")
		return ExitUsage
	}

	res, err := driver.New(engine, cfg.Spec(), source(cfg), log).Run()
	if err != nil {
		code := exitCode(err)
		// A missing or short dataset ends the run quietly with status 1.
		if code == ExitLoadFailed {
			log.WithError(err).Debug("sample load failed")
		} else {
			log.WithError(err).Error("prediction failed")
		}
		return code
	}

	if err := res.Report(stdout); err != nil {
		log.WithError(err).Error("failed to write result")
		return ExitModel
	}
	return ExitOK
}

func source(cfg *config.Config) driver.Source {
	if cfg.Image != "" {
		return driver.ImageSource(cfg.Image, cfg.Label, cfg.Invert)
	}
	set, _ := dataset.ParseSet(cfg.Set)
	return driver.IDXSource(cfg.DataDir, set, cfg.Index)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, dataset.ErrLoad):
		return ExitLoadFailed
	default:
		return ExitModel
	}
}

func newLogger(w io.Writer, level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	return log
}
