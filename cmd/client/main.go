package main

import (
	"fmt"
	"os"

	"github.com/motongxue/fileTransferKit/client"
	"github.com/motongxue/fileTransferKit/utils"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(args []string) error {
	files, v, err := client.ParseArgs(args)
	if err != nil {
		return err
	}
	cfg, err := utils.LoadConfig(v)
	if err != nil {
		return err
	}
	utils.SetupLogger(cfg.LogLevel)

	c, err := client.MakeClient(cfg)
	if err != nil {
		return err
	}
	if err := c.Init(); err != nil {
		return err
	}
	defer c.Close()

	utils.Logger.WithField("server", cfg.Endpoint()).WithField("transport", cfg.Transport).Info("start transfer")
	return c.Transfer(files)
}
