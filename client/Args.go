package client

import (
	"errors"

	"github.com/motongxue/fileTransferKit/utils"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ParseArgs 位置参数为文件路径，-a 和 -p 覆盖默认的对端地址和端口
func ParseArgs(args []string) ([]string, *viper.Viper, error) {
	fs := pflag.NewFlagSet("ft-client", pflag.ContinueOnError)
	fs.StringP("address", "a", "", "server address")
	fs.IntP("port", "p", 0, "server port")
	fs.StringP("transport", "t", "", "transport: udp or tcp")
	configFile := fs.StringP("config", "c", "", "config file")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	files := fs.Args()
	if len(files) == 0 {
		return nil, nil, errors.New("Error: no file name in arguments")
	}

	v, err := utils.NewViper(*configFile)
	if err != nil {
		return nil, nil, err
	}
	for _, name := range []string{"address", "port", "transport"} {
		if flag := fs.Lookup(name); flag.Changed {
			if err := v.BindPFlag(name, flag); err != nil {
				return nil, nil, err
			}
		}
	}
	return files, v, nil
}
