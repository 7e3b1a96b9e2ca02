// Command server serves a filestore volume over HTTP, for deployments where
// the relay writes blobs to a shared volume served by another host.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/pflag"

	"github.com/Driving-Capstone/DrivingCoach-BE/objstore/filestore"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto/logging"
)

var (
	port = pflag.Int("port", 80, "port to serve http on")
	vol  = pflag.String("vol", "", "path to storage volume")
)

func main() {
	pflag.Parse()
	if *vol == "" {
		fmt.Printf("usage: %s [--port=PORT] --vol=PATH\n", os.Args[0])
		pflag.PrintDefaults()
		os.Exit(1)
	}

	logger := logging.Init(os.Stderr, "info", false)

	store, err := filestore.Open(*vol, "")
	if err != nil {
		logger.Error().Err(err).Msg("open volume")
		os.Exit(2)
	}

	addr := fmt.Sprintf(":%d", *port)
	logger.Info().Str("addr", addr).Str("vol", *vol).Msg("serving blobs")
	if err := http.ListenAndServe(addr, store); err != nil {
		logger.Error().Err(err).Msg("serve")
		os.Exit(2)
	}
}
