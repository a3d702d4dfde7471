package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"telerelay/internal/command"
	"telerelay/internal/events"
	"telerelay/internal/flog"
	"telerelay/internal/logger"
	"telerelay/internal/manager"
	"telerelay/internal/share"
	"telerelay/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Boot the connection manager and block until interrupted",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := loadConf()
	if err != nil {
		return err
	}

	if c.Log.Directory != "" {
		flog.UseDirectory(c.Log.Directory)
	}
	flog.SetLevel(int(levelFromString(c.Log.Level)))
	defer flog.Close()

	transport.ConfigureUDPBuffers(c.UDP.ReadBufferBytes, c.UDP.WriteBufferBytes)
	share.ConfigurePrecisionThreshold(c.Share.PrecisionPathThresholdMs)

	fileLogger := logger.New(c.Log.Directory)
	defer fileLogger.Close()

	emitter := events.NewChannelEmitter(256)
	defer emitter.Close()

	mgr := manager.New(fileLogger, emitter)
	surface := command.New(mgr, fileLogger)
	surface.SetDefaultSerialBaud(int(c.Serial.DefaultBaud))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flog.Infof("telerelayd: serving (log dir %q)", surface.GetLogsDirectory())
	fmt.Println("telerelayd: serving, press ctrl-c to stop")

	for {
		select {
		case <-ctx.Done():
			connCount := surface.GetConnectionCount()
			surface.DisconnectAllConnections()
			flog.Infof("telerelayd: shut down, %d connections closed", connCount)
			return nil
		case ev, ok := <-emitter.Events():
			if !ok {
				return nil
			}
			fmt.Printf("[%s] %v\n", ev.Topic, ev.Payload)
		}
	}
}
