// Command cockeys inspects a cocapi key pool and queries the game API with
// it.
//
// Credentials and endpoints come from a YAML config file (--config), from
// COCAPI_ environment variables and from a .env file, in increasing order
// of precedence for the environment.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.yaml.in/yaml/v3"

	cocapi "github.com/cocapi/client-go"
	"github.com/cocapi/client-go/tag"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

const defaultEnvFile = ".env"

const commandTimeout = 2 * time.Minute

// newApp builds the CLI application writing to stdout and stderr.
func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "cockeys",
		Usage:     "Manage a Clash of Clans API key pool and query the API",
		Version:   fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags:     globalFlags(),
		Commands: []*cli.Command{
			tagCommand(),
			keysCommand(),
			clanCommand(),
			playerCommand(),
		},
		Before: loadEnvFile,
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	return newApp(stdout, stderr).Run(args)
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML config file",
			EnvVars: []string{"COCAPI_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "dotenv file to load before reading COCAPI_ variables",
			Value: defaultEnvFile,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Log key pool activity to stderr",
		},
	}
}

// loadEnvFile loads --env-file. A missing default file is not an error.
func loadEnvFile(c *cli.Context) error {
	path := c.String("env-file")
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && !c.IsSet("env-file") {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func tagCommand() *cli.Command {
	return &cli.Command{
		Name:  "tag",
		Usage: "Convert between tags and their numeric form",
		Subcommands: []*cli.Command{
			{
				Name:      "encode",
				Usage:     "Encode a (high, low) pair as a tag",
				ArgsUsage: "HIGH LOW",
				Action:    tagEncode,
			},
			{
				Name:      "decode",
				Usage:     "Decode a tag into its (high, low) pair",
				ArgsUsage: "TAG",
				Action:    tagDecode,
			},
		},
	}
}

func tagEncode(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("usage: cockeys tag encode HIGH LOW")
	}
	high, err := strconv.ParseInt(c.Args().Get(0), 10, 32)
	if err != nil {
		return fmt.Errorf("parse high: %w", err)
	}
	low, err := strconv.ParseInt(c.Args().Get(1), 10, 32)
	if err != nil {
		return fmt.Errorf("parse low: %w", err)
	}

	text, err := tag.Encode(int32(high), int32(low))
	if err != nil {
		return err
	}
	return render(c, tagOutput{Tag: text, High: int32(high), Low: int32(low)})
}

func tagDecode(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: cockeys tag decode TAG")
	}
	t, err := tag.Parse(c.Args().First())
	if err != nil {
		return err
	}
	return render(c, tagOutput{Tag: t.String(), High: t.High, Low: t.Low})
}

func keysCommand() *cli.Command {
	return &cli.Command{
		Name:   "keys",
		Usage:  "Initialize the key pool and show its state",
		Action: keysShow,
	}
}

func keysShow(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(c.Context, commandTimeout)
	defer cancel()

	client, err := newClient(ctx, c)
	if err != nil {
		return err
	}
	return render(c, client.Stats())
}

func clanCommand() *cli.Command {
	return &cli.Command{
		Name:      "clan",
		Usage:     "Show a clan",
		ArgsUsage: "TAG",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("usage: cockeys clan TAG")
			}
			ctx, cancel := context.WithTimeout(c.Context, commandTimeout)
			defer cancel()

			client, err := newClient(ctx, c)
			if err != nil {
				return err
			}
			clan, err := client.GetClan(ctx, c.Args().First())
			if err != nil {
				return err
			}
			return render(c, clan)
		},
	}
}

func playerCommand() *cli.Command {
	return &cli.Command{
		Name:      "player",
		Usage:     "Show a player",
		ArgsUsage: "TAG",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("usage: cockeys player TAG")
			}
			ctx, cancel := context.WithTimeout(c.Context, commandTimeout)
			defer cancel()

			client, err := newClient(ctx, c)
			if err != nil {
				return err
			}
			player, err := client.GetPlayer(ctx, c.Args().First())
			if err != nil {
				return err
			}
			return render(c, player)
		},
	}
}

func newClient(ctx context.Context, c *cli.Context) (*cocapi.Client, error) {
	cfg, err := cocapi.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.Bool("verbose") {
		cfg.Log.Level = "debug"
	} else if cfg.Log.Level == "info" {
		cfg.Log.Level = "warn"
	}
	if len(cfg.AllCredentials()) == 0 {
		return nil, errors.New("no credentials: set COCAPI_EMAIL and COCAPI_PASSWORD or list them in --config")
	}
	return cocapi.NewFromConfig(ctx, cfg)
}

type tagOutput struct {
	Tag  string `json:"tag" yaml:"tag"`
	High int32  `json:"high" yaml:"high"`
	Low  int32  `json:"low" yaml:"low"`
}

// render writes v in the --output format.
func render(c *cli.Context, v any) error {
	w := c.App.Writer
	switch c.String("output") {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	case "table", "":
		return renderTable(w, v)
	default:
		return fmt.Errorf("unknown output format %q", c.String("output"))
	}
}

func renderTable(w io.Writer, v any) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	switch v := v.(type) {
	case tagOutput:
		fmt.Fprintf(tw, "TAG\tHIGH\tLOW\n")
		fmt.Fprintf(tw, "%s\t%d\t%d\n", v.Tag, v.High, v.Low)
	case cocapi.Stats:
		fmt.Fprintf(tw, "ip:\t%s\n", v.IP)
		fmt.Fprintf(tw, "ready:\t%t\n", v.Ready)
		fmt.Fprintf(tw, "generation:\t%d\n", v.Generation)
		fmt.Fprintf(tw, "keys:\t%d\n\n", v.TotalKeys)
		fmt.Fprintf(tw, "IDENTITY\tKEYS\tUSABLE\n")
		for _, s := range v.Sessions {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", s.Identity, s.Keys, s.UsableKeys)
		}
	case *cocapi.Clan:
		fmt.Fprintf(tw, "TAG\tNAME\tLEVEL\tMEMBERS\tPOINTS\n")
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", v.Tag, v.Name, v.ClanLevel, v.Members, v.ClanPoints)
	case *cocapi.Player:
		clan := "-"
		if v.Clan != nil {
			clan = v.Clan.Tag
		}
		fmt.Fprintf(tw, "TAG\tNAME\tTOWNHALL\tTROPHIES\tCLAN\n")
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", v.Tag, v.Name, v.TownHallLevel, v.Trophies, clan)
	default:
		return fmt.Errorf("no table layout for %T", v)
	}
	return tw.Flush()
}
