package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/weft/server"
)

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8750", "Connect (HTTP) listen address")
	grpcAddr := fs.String("grpc-addr", "", "native gRPC listen address (disabled when empty)")
	verbosity := fs.Int("v", 1, "log verbosity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	configureLogging(*verbosity, nil)

	srv := server.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(*addr) })
	if *grpcAddr != "" {
		lis, err := net.Listen("tcp", *grpcAddr)
		if err != nil {
			srv.Stop()
			return errors.Wrapf(err, "listening on %s", *grpcAddr)
		}
		g.Go(func() error { return srv.ServeGRPC(lis) })
	}
	g.Go(func() error {
		<-ctx.Done()
		srv.Stop()
		return nil
	})
	return g.Wait()
}
