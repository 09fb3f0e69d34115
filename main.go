package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradetrace/src/cache"
	"tradetrace/src/controller"
	"tradetrace/src/database"
	"tradetrace/src/ghost"
	"tradetrace/src/server"
)

var (
	APP_NAME = os.Getenv("APP_NAME")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	if err := database.InitDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipeline := controller.NewPipelineController()
	view := cache.NewView(pipeline, cache.GetConfig().RefreshInterval)
	view.Start(ctx)

	forwarder := ghost.NewForwarder(view)

	server.StartServer(server.GetConfig().Port, view, forwarder)
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
