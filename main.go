package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"stdview/config"
	dwarfhelper "stdview/dwarf"
	"stdview/errors"
	"stdview/memory"
	"stdview/rtti"
	"stdview/stl"
	"stdview/utils"
)

func main() {
	cfg := config.Default()
	app := newApp(&cfg)
	if err := app.Run(os.Args); err != nil {
		// the logger may not be set up yet
		fmt.Fprintln(os.Stderr, "stdview:", err)
		os.Exit(1)
	}
}

func newApp(cfg *config.Config) *cli.App {
	return &cli.App{
		Name:  "stdview",
		Usage: "inspect C++ standard library containers in another process",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Before: func(c *cli.Context) error {
			return setup(c, cfg)
		},
		Commands: []*cli.Command{
			{
				Name:    "types",
				Aliases: []string{"t"},
				Usage:   "list container types in the debug info and the layout each follows",
				Flags:   []cli.Flag{inputFlag()},
				Action: func(c *cli.Context) error {
					return listTypes(c, binaryPath(c, cfg))
				},
			},
			{
				Name:    "rtti",
				Aliases: []string{"r"},
				Usage:   "list type information and vtable symbols",
				Flags: []cli.Flag{
					inputFlag(),
					&cli.StringFlag{Name: "bias", Usage: "load address of the image (hex)"},
				},
				Action: func(c *cli.Context) error {
					bias, err := biasOf(c, cfg)
					if err != nil {
						return err
					}
					return listRTTI(c, binaryPath(c, cfg), bias)
				},
			},
			{
				Name:    "dump",
				Aliases: []string{"d"},
				Usage:   "read a container from a live process and print it",
				Flags: []cli.Flag{
					inputFlag(),
					&cli.IntFlag{Name: "pid", Aliases: []string{"p"}, Usage: "target process id"},
					&cli.StringFlag{Name: "type", Usage: "qualified type name of the object", Required: true},
					&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Usage: "address of the object (hex)", Required: true},
					&cli.StringFlag{Name: "bias", Usage: "load address of the image (hex)"},
					&cli.IntFlag{Name: "depth", Usage: "nesting levels to print"},
					&cli.IntFlag{Name: "max-elements", Usage: "elements to print per container"},
				},
				Action: func(c *cli.Context) error {
					return dump(c, cfg)
				},
			},
		},
	}
}

func inputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "input",
		Aliases: []string{"i"},
		Usage:   "ELF binary with debug information",
	}
}

// setup loads the configuration file, applies global flags and installs
// the logger.
func setup(c *cli.Context, cfg *config.Config) error {
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		*cfg = loaded
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}

func binaryPath(c *cli.Context, cfg *config.Config) string {
	if c.IsSet("input") {
		return c.String("input")
	}
	return cfg.Target.Binary
}

func parseAddress(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "address %q", s)
	}
	return v, nil
}

func biasOf(c *cli.Context, cfg *config.Config) (uint64, error) {
	if c.IsSet("bias") {
		return parseAddress(c.String("bias"))
	}
	return cfg.Target.Bias, nil
}

func openInfo(path string) (*dwarfhelper.DwarfInfo, error) {
	if path == "" {
		return nil, errors.New("no binary: pass --input or set target.binary")
	}
	return dwarfhelper.NewDwarfInfo(path)
}

func listTypes(c *cli.Context, path string) error {
	info, err := openInfo(path)
	if err != nil {
		return err
	}
	defer info.Close()

	for _, name := range info.TypeNames() {
		kind := utils.ContainerOf(name)
		if kind == utils.NotContainer {
			continue
		}
		t, err := info.Type(name)
		if err != nil {
			zap.L().Debug("skipping type", zap.String("type", name), zap.Error(err))
			continue
		}
		toolchain, err := stl.Detect(string(kind), t)
		if err != nil {
			toolchain = "unsupported"
		}
		fmt.Fprintf(c.App.Writer, "%-14s %-10s %s\n", kind, toolchain, name)
	}
	return nil
}

func listRTTI(c *cli.Context, path string, bias uint64) error {
	info, err := openInfo(path)
	if err != nil {
		return err
	}
	defer info.Close()

	syms, err := rtti.ReadSymbols(info.ELF(), bias)
	if err != nil {
		return err
	}
	for _, s := range syms.RTTI() {
		fmt.Fprintf(c.App.Writer, "%#016x %s\n", s.Address, s.Name)
	}
	return nil
}

func dump(c *cli.Context, cfg *config.Config) error {
	pid := cfg.Target.Pid
	if c.IsSet("pid") {
		pid = c.Int("pid")
	}
	if pid <= 0 {
		return errors.New("no process: pass --pid or set target.pid")
	}
	addr, err := parseAddress(c.String("addr"))
	if err != nil {
		return err
	}
	bias, err := biasOf(c, cfg)
	if err != nil {
		return err
	}
	depth, maxElements := cfg.Print.Depth, cfg.Print.MaxElements
	if c.IsSet("depth") {
		depth = c.Int("depth")
	}
	if c.IsSet("max-elements") {
		maxElements = c.Int("max-elements")
	}

	info, err := openInfo(binaryPath(c, cfg))
	if err != nil {
		return err
	}
	defer info.Close()

	t, err := info.Type(c.String("type"))
	if err != nil {
		return err
	}
	syms, err := rtti.ReadSymbols(info.ELF(), bias)
	if err != nil {
		return err
	}
	mem, err := memory.OpenPid(pid)
	if err != nil {
		return err
	}
	proc := memory.NewProcess(mem,
		memory.WithSymbols(syms),
		memory.WithPointerSize(info.PointerSize()),
		memory.WithByteOrder(info.ByteOrder()))

	zap.L().Debug("dumping",
		zap.Int("pid", pid),
		zap.String("type", t.Name()),
		zap.String("addr", fmt.Sprintf("%#x", addr)))

	p := &printer{out: c.App.Writer, types: info, maxDepth: depth, maxElements: maxElements}
	return p.print(memory.Remote{Process: proc, Type: t, Address: addr})
}
