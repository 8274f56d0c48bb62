package main

import (
	"context"
	"crypto/tls"
	"io"
	"time"

	log "github.com/CefBoud/monstream/logging"
	"github.com/CefBoud/monstream/mux"
	"github.com/CefBoud/monstream/pool"
	"github.com/CefBoud/monstream/types"
	"github.com/CefBoud/monstream/utils"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

type options struct {
	host        string
	port        int
	user        string
	password    string
	vhost       string
	useTLS      bool
	timeout     time.Duration
	logLevel    string
	nodes       string
	maxAttempts int

	pool *pool.LoadBalancer
}

func (o *options) configuration() types.Configuration {
	cfg := types.Configuration{
		Username:       o.user,
		Password:       o.password,
		Vhost:          o.vhost,
		RequestTimeout: o.timeout,
		ConnectTimeout: o.timeout,
	}
	if o.useTLS {
		cfg.TLS = &tls.Config{ServerName: o.host}
	}
	return cfg
}

// acquire returns a connection to one of --nodes, any node when unset
func (o *options) acquire(ctx context.Context) (*mux.Wrapper, error) {
	if o.pool == nil {
		o.pool = pool.NewLoadBalancer(o.configuration(), types.Endpoint{Host: o.host, Port: o.port}, o.maxAttempts)
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return o.pool.AcquireClient(ctx, utils.SplitList(o.nodes))
}

// withClient runs fn on a pooled connection and releases it
func (o *options) withClient(ctx context.Context, fn func(w *mux.Wrapper) error) error {
	w, err := o.acquire(ctx)
	if err != nil {
		return err
	}
	var result *multierror.Error
	if err := fn(w); err != nil {
		result = multierror.Append(result, err)
	}
	if err := o.pool.ReleaseClient(w); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// requestContext bounds a single request by --timeout
func (o *options) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.timeout)
}

func newRootCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "monstream",
		Short:         "Manage streams and publish or consume messages",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetLogLevel(o.logLevel)
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.host, "host", "localhost", "server or load balancer host")
	flags.IntVar(&o.port, "port", 5552, "server or load balancer port")
	flags.StringVarP(&o.user, "user", "u", "guest", "username")
	flags.StringVarP(&o.password, "password", "p", "guest", "password")
	flags.StringVar(&o.vhost, "vhost", "/", "virtual host")
	flags.BoolVar(&o.useTLS, "tls", false, "connect over TLS")
	flags.DurationVar(&o.timeout, "timeout", 10*time.Second, "connect and request timeout")
	flags.StringVar(&o.logLevel, "log-level", log.WARN, "TRACE, DEBUG, INFO, WARN or ERROR")
	flags.StringVar(&o.nodes, "nodes", "", "comma separated advertised hosts to connect to, any when empty")
	flags.IntVar(&o.maxAttempts, "max-attempts", 5, "connections tried to reach one of --nodes, 0 for no bound")

	cmd.AddCommand(
		newCreateCmd(o),
		newDeleteCmd(o),
		newMetadataCmd(o),
		newStatsCmd(o),
		newRouteCmd(o),
		newPartitionsCmd(o),
		newPublishCmd(o),
		newConsumeCmd(o),
	)
	return cmd
}

// run executes the command line args and closes the connections it opened
func run(ctx context.Context, args []string, out io.Writer) error {
	o := &options{}
	cmd := newRootCmd(o)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	err := cmd.ExecuteContext(ctx)
	if o.pool != nil {
		if closeErr := o.pool.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
