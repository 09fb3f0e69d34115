package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"tradetrace/cmd/poller"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Tradetrace CMD"
	app.Usage = "The Tradetrace command line interface"

	app.Commands = []cli.Command{
		pollerCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	pollerCMD = cli.Command{
		Name:        "poller",
		Usage:       "run brokerage Poller",
		Action:      pollerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run brokerage poller CMD`,
	}
)

func pollerAction(_ *cli.Context) error {

	logrus.Info("Starting poller CMD")
	logrus.WithField("cmd", "poller")

	p := &poller.Poller{}
	err := p.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}
