package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	configFlag := &cli.PathFlag{Name: "c", Usage: "config file path", Value: "guide-rpc.json"}

	cmdInitConfig := &cli.Command{
		Name:  "init-config",
		Usage: "write a config file with every default",
		Flags: []cli.Flag{configFlag},
		Action: func(c *cli.Context) error {
			return initConfig(c.Path("c"))
		},
	}
	cmdProvider := &cli.Command{
		Name:  "provider",
		Usage: "publish the hello service and serve until interrupted",
		Flags: []cli.Flag{configFlag},
		Action: func(c *cli.Context) error {
			return runProvider(c.Path("c"))
		},
	}
	cmdConsumer := &cli.Command{
		Name:  "consumer",
		Usage: "call the hello service once",
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{Name: "message", Usage: "greeting message", Value: "111"},
			&cli.StringFlag{Name: "description", Usage: "greeting description", Value: "222"},
		},
		Action: func(c *cli.Context) error {
			return runConsumer(c.Path("c"), c.String("message"), c.String("description"))
		},
	}

	app := &cli.App{
		Name:  "guide-rpc",
		Usage: "service registry and discovery backed RPC",
		Commands: []*cli.Command{
			cmdInitConfig,
			cmdProvider,
			cmdConsumer,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
