package poller

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"tradetrace/src/database"
	"tradetrace/src/poller"
)

type Poller struct {
}

func (p *Poller) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	if err := database.InitDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
		return err
	}

	logrus.Info("Starting brokerage poller")

	if err := poller.StartLoop(ctx); err != nil {
		logrus.WithError(err).Error("Failed to start poller loop")
		return err
	}

	return nil
}
