package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fantach/api"
	"fantach/config"
	"fantach/device/fan"
	"fantach/jsonrpc"
	"fantach/log"
	"fantach/report"
	"fantach/version"
)

var (
	configPath  = flag.String("c", config.DefaultConfigFile, "config file")
	listenAddr  = flag.String("l", "", "API listen address, overrides the config file")
	debug       = flag.Bool("d", false, "debug logging")
	showVersion = flag.Bool("v", false, "print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("%s %s (%s, built %s)\n", version.Agent, version.GitHash, version.Branch, version.BuildTS)
		return
	}

	if err := run(); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadOnce(*configPath)
	if err != nil {
		return err
	}
	log.SetDebug(cfg.Debug || *debug)
	if *listenAddr != "" {
		cfg.API.Listen = *listenAddr
	}

	log.Infof("=============== %s start ===============", version.Agent)

	bank, err := fan.NewBank(cfg)
	if err != nil {
		return err
	}

	monitor := fan.NewMonitor(cfg.Monitor)
	if err = bank.Register(monitor); err != nil {
		return err
	}
	if err = bank.Register(report.LogSink{}); err != nil {
		return err
	}
	if cfg.Report.Dir != "" {
		files, err := report.NewFileSink(cfg.Report.Dir)
		if err != nil {
			return err
		}
		if err = bank.Register(files); err != nil {
			return err
		}
	}
	if cfg.Report.SerialPort != "" {
		console, err := report.OpenSerial(cfg.Report.SerialPort, cfg.Report.SerialBaud)
		if err != nil {
			// the console is optional, keep measuring without it
			log.Errorf("serial console: %v", err)
		} else {
			defer console.Close()
			if err = bank.Register(console); err != nil {
				return err
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err = bank.Start(ctx); err != nil {
		return err
	}

	var server *jsonrpc.Server
	if cfg.API.Listen != "" {
		server, err = jsonrpc.NewServer(cfg.API.Listen, api.New(bank, monitor).Serve, cfg.API.KeepAlive)
		if err != nil {
			cancel()
			bank.Wait()
			return err
		}
		go server.ListenAndServe()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	if server != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(sctx); err != nil {
			log.Errorf("api shutdown: %v", err)
		}
		scancel()
	}
	cancel()
	bank.Wait()

	log.Infof("=============== %s stop ===============", version.Agent)
	return nil
}
