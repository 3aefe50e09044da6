package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guide-rpc/bootstrap"
	"guide-rpc/config"
	"guide-rpc/example/hello"
	"guide-rpc/message"
	"guide-rpc/rpclog"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func initConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Errorf("%s already exists", path)
	}
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func runProvider(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	// one provider per config file: a second one would advertise the same address
	fl := flock.New(path + ".lock")
	if locked, _ := fl.TryLock(); !locked {
		return errors.New("Unable to lock the config file," +
			" make sure there isn't another provider running.")
	}
	defer func() {
		_ = fl.Unlock()
	}()

	logger := rpclog.New(cfg.LogLevel, os.Stdout).WithField("role", "provider")
	ext := bootstrap.NewExtensions(cfg, logger)
	defer ext.Close()

	p, err := bootstrap.NewProvider(ext, cfg, logger)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := p.Publish(ctx, hello.ServiceConfig()); err != nil {
		return err
	}
	if err := p.Start(cfg.ListenAddr); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"listen":    cfg.ListenAddr,
		"advertise": cfg.AdvertiseAddr,
	}).Info("provider started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	return p.Shutdown(ctx, shutdownTimeout)
}

func runConsumer(path, msg, description string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logger := rpclog.New(cfg.LogLevel, os.Stderr).WithField("role", "consumer")
	ext := bootstrap.NewExtensions(cfg, logger)
	defer ext.Close()

	cli, err := bootstrap.NewClient(ext, cfg, logger)
	if err != nil {
		return err
	}
	key := message.ServiceKey{Interface: hello.Interface, Version: hello.Version, Group: hello.Group}

	var greeting string
	err = cli.Service(key).Call(context.Background(), "hello", &greeting, &hello.Hello{Message: msg, Description: description})
	if err != nil {
		return err
	}
	fmt.Println(greeting)
	return nil
}
