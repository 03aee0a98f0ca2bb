package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"ada/host/config"
	"ada/host/robot"
	"ada/sensors/color"
	"ada/sensors/ultrasound"
)

var (
	configPath = flag.String("config", "", "JSON configuration file")
	device     = flag.String("device", "", "Serial device path (overrides config)")
	baud       = flag.Int("baud", 0, "Baud rate (overrides config)")
	verbose    = flag.Bool("verbose", false, "Enable verbose output")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ada host - micro:bit sensor console")
	fmt.Println("===================================")
	fmt.Println()

	opts := robot.Options{Timeout: cfg.CommandTimeout()}
	if *verbose {
		opts.Log = os.Stdout
	}

	fmt.Printf("Connecting to %s at %d baud...\n", cfg.Device, cfg.Baud)
	bot, err := robot.Connect(cfg.Serial(), opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer bot.Close()

	if version, shutdown, err := bot.FirmwareStatus(); err == nil {
		fmt.Printf("Connected to firmware %s", version)
		if shutdown {
			fmt.Print(" (shut down, sensors unavailable until reset)")
		}
		fmt.Println()
	} else {
		fmt.Println("Connected.")
	}

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	if err := repl(bot, cfg, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads -config when given and applies the flag overrides
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return nil, err
		}
	}
	if *device != "" {
		cfg.Device = *device
	}
	if *baud != 0 {
		cfg.Baud = *baud
	}
	return cfg, nil
}

// repl runs the interactive loop until quit or end of input
func repl(bot *robot.Robot, cfg *config.Config, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		args, err := shlex.Split(scanner.Text())
		if err != nil {
			fmt.Fprintf(out, "Parse error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		if args[0] == "quit" || args[0] == "exit" || args[0] == "q" {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
		if err := runCommand(bot, cfg, args, out); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
	return scanner.Err()
}

func runCommand(bot *robot.Robot, cfg *config.Config, args []string, out io.Writer) error {
	switch args[0] {
	case "help", "?":
		printHelp(out)
		return nil

	case "dict":
		dict := bot.Dictionary()
		if dict == nil {
			return robot.ErrNoDictionary
		}
		dict.Print(out)
		return nil

	case "raw":
		raw := bot.DictionaryRaw()
		fmt.Fprintf(out, "Raw dictionary data (%d bytes):\n%s\n", len(raw), raw)
		return nil

	case "distance":
		unit := cfg.DistanceUnit()
		if len(args) > 1 {
			var err error
			if unit, err = ultrasound.ParseUnit(args[1]); err != nil {
				return err
			}
		}
		d, err := bot.ReadDistance(unit)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d %s\n", d, unit)
		return nil

	case "color":
		reading, err := bot.ReadColor()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "raw r=%d g=%d b=%d clear=%d -> %s\n",
			reading.RGB.R, reading.RGB.G, reading.RGB.B, reading.Clear, reading.Color().Hex())
		return nil

	case "channel":
		if len(args) < 2 {
			return fmt.Errorf("usage: channel <%s>", strings.Join(color.ChannelNames(), "|"))
		}
		ch, err := color.ParseChannel(args[1])
		if err != nil {
			return err
		}
		v, err := bot.ReadChannel(ch)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s=%d\n", ch, v)
		return nil

	case "match":
		if len(args) < 2 {
			// An unquoted #RRGGBB reads as a comment
			return fmt.Errorf("usage: match <RRGGBB|'#RRGGBB'> [tolerance]")
		}
		target, err := color.ParseTarget(args[1])
		if err != nil {
			return err
		}
		tolerance := cfg.Tolerance
		if len(args) > 2 {
			if tolerance, err = strconv.Atoi(args[2]); err != nil {
				return fmt.Errorf("tolerance: %w", err)
			}
		}
		res, err := bot.MatchColor(target, tolerance)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: match=%v distance=%d tolerance=%d\n",
			target, res.Match, res.Distance, color.ClampTolerance(tolerance))
		return nil

	case "i2cget":
		if len(args) < 4 {
			return fmt.Errorf("usage: i2cget <addr> <reg> <len>")
		}
		addr, err := strconv.ParseUint(args[1], 0, 7)
		if err != nil {
			return fmt.Errorf("addr: %w", err)
		}
		reg, err := strconv.ParseUint(args[2], 0, 8)
		if err != nil {
			return fmt.Errorf("reg: %w", err)
		}
		n, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("len: %w", err)
		}
		data, err := bot.I2CRead(uint8(addr), []byte{uint8(reg)}, n)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "0x%02x[0x%02x]: % x\n", addr, reg, data)
		return nil

	case "colorid":
		id, err := bot.ColorSensorID()
		if err != nil {
			return err
		}
		name, ok := color.PartName(id)
		if !ok {
			name = "unknown part"
		}
		fmt.Fprintf(out, "0x%02x (%s)\n", id, name)
		return nil

	case "uptime":
		up, err := bot.Uptime()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%v\n", up.Round(time.Millisecond))
		return nil

	default:
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", args[0])
	}
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "\nAvailable commands:")
	fmt.Fprintln(out, "  distance [cm|in|us]        - Ping the ultrasonic ranger")
	fmt.Fprintln(out, "  color                      - Read the raw color channels")
	fmt.Fprintln(out, "  channel <red|green|blue|clear> - Read one color channel")
	fmt.Fprintln(out, "  match <RRGGBB> [tol]       - Compare the reading with a color")
	fmt.Fprintln(out, "  colorid                    - Identify the color sensor part")
	fmt.Fprintln(out, "  i2cget <addr> <reg> <len>  - Read raw bytes from an I2C device")
	fmt.Fprintln(out, "  uptime                     - Firmware uptime")
	fmt.Fprintln(out, "  dict                       - Print dictionary summary")
	fmt.Fprintln(out, "  raw                        - Print raw dictionary data")
	fmt.Fprintln(out, "  help                       - Show this help message")
	fmt.Fprintln(out, "  quit/exit/q                - Exit the program")
	fmt.Fprintln(out, "Text after an unquoted # is a comment.")
	fmt.Fprintln(out)
}
